// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"strings"

	"github.com/framelink/framelink/protocol"
	"github.com/framelink/framelink/transport"
)

// ConnectOptions parameterizes one connect attempt. Validation
// happens before any network work: a bad host or port never creates a
// session.
type ConnectOptions struct {
	Host    string
	Port    int
	Secure  bool
	Quality protocol.Quality
	Token   string
}

// normalize validates the options and fills defaults, returning the
// cleaned copy.
func (o ConnectOptions) normalize() (ConnectOptions, error) {
	if strings.TrimSpace(o.Host) == "" {
		return o, &ValidationError{Field: "host", Reason: "must not be empty"}
	}
	if o.Port < 1 || o.Port > 65535 {
		return o, &ValidationError{Field: "port", Reason: fmt.Sprintf("%d outside 1-65535", o.Port)}
	}
	if o.Quality == "" {
		o.Quality = protocol.QualityMedium
	}
	if _, err := protocol.ParseQuality(string(o.Quality)); err != nil {
		return o, &ValidationError{Field: "quality", Reason: err.Error()}
	}
	return o, nil
}

func (o ConnectOptions) endpoint() transport.Endpoint {
	return transport.Endpoint{Host: o.Host, Port: o.Port, Secure: o.Secure}
}

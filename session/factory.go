// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"log/slog"

	"github.com/framelink/framelink/lib/clock"
	"github.com/framelink/framelink/transport"
)

// TransportFactory builds a fresh transport for each connect or
// reconnect attempt. Transports are single-use: once one dies, the
// orchestrator asks the factory for a new one rather than reviving
// it. Tests substitute fakes here.
type TransportFactory interface {
	New(kind transport.Kind, options ConnectOptions) (transport.Transport, error)
}

// Factory is the production TransportFactory. Peer and Relay hold the
// static parts of each transport's configuration; the per-attempt
// endpoint and token come from the connect options.
type Factory struct {
	Peer   transport.PeerConfig
	Relay  transport.RelayConfig
	Clock  clock.Clock
	Logger *slog.Logger
}

var _ TransportFactory = (*Factory)(nil)

func (f *Factory) New(kind transport.Kind, options ConnectOptions) (transport.Transport, error) {
	switch kind {
	case transport.KindPeer:
		config := f.Peer
		config.Endpoint = options.endpoint()
		config.Token = options.Token
		return transport.NewPeer(config, f.Clock, f.Logger), nil
	case transport.KindRelay:
		config := f.Relay
		config.Endpoint = options.endpoint()
		config.Token = options.Token
		return transport.NewRelay(config, f.Clock, f.Logger)
	}
	return nil, fmt.Errorf("session: unknown transport kind %q", kind)
}

// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/framelink/framelink/protocol"
)

// signalClient is the websocket leg of peer negotiation. It carries
// JSON signal messages (auth, offer, answer, trickled ICE candidates)
// between the viewer and the host's signaling endpoint. The client
// lives only as long as negotiation needs it; once the peer connection
// is up the socket is closed.
type signalClient struct {
	conn   *websocket.Conn
	logger *slog.Logger

	// writeMu serializes writes: gorilla permits one concurrent
	// writer, and both the offer path and the ICE callback write.
	writeMu sync.Mutex

	inbound   chan protocol.Signal
	closeOnce sync.Once
	closed    chan struct{}
}

// dialSignaling connects to the signaling endpoint and, when a token
// is configured, authenticates before anything else is exchanged.
// The read pump starts immediately so an early answer is never lost.
func dialSignaling(ctx context.Context, url, token string, logger *slog.Logger) (*signalClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing signaling endpoint %s: %w", url, err)
	}

	client := &signalClient{
		conn:    conn,
		logger:  logger,
		inbound: make(chan protocol.Signal, 16),
		closed:  make(chan struct{}),
	}

	if token != "" {
		if err := client.send(protocol.AuthSignal(token)); err != nil {
			client.Close()
			return nil, fmt.Errorf("authenticating with signaling endpoint: %w", err)
		}
	}

	go client.readPump()
	return client, nil
}

// send writes one signal message. Safe for concurrent use.
func (c *signalClient) send(signal protocol.Signal) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	return c.conn.WriteJSON(signal)
}

// recv delivers the next inbound signal, or an error when the socket
// closes or ctx expires.
func (c *signalClient) recv(ctx context.Context) (protocol.Signal, error) {
	select {
	case signal, ok := <-c.inbound:
		if !ok {
			return protocol.Signal{}, errors.New("signaling socket closed")
		}
		return signal, nil
	case <-c.closed:
		return protocol.Signal{}, errors.New("signaling socket closed")
	case <-ctx.Done():
		return protocol.Signal{}, ctx.Err()
	}
}

func (c *signalClient) readPump() {
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		signal, err := protocol.ParseSignal(data)
		if err != nil {
			// Unknown signal types are skipped, not fatal: the
			// endpoint may speak a newer dialect.
			c.logger.Warn("dropping unparseable signal", "error", err)
			continue
		}
		select {
		case c.inbound <- signal:
		case <-c.closed:
			return
		}
	}
}

// Close tears down the socket. Idempotent.
func (c *signalClient) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

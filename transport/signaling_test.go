// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/framelink/framelink/protocol"
)

func TestSignalClientAuthenticatesFirst(t *testing.T) {
	received := make(chan protocol.Signal, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		signal, err := protocol.ParseSignal(data)
		if err != nil {
			t.Errorf("first message unparseable: %v", err)
			return
		}
		received <- signal
	}))
	t.Cleanup(server.Close)

	endpoint := testEndpoint(t, server)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := dialSignaling(ctx, endpoint.SignalURL(), "tok-77", testLogger())
	if err != nil {
		t.Fatalf("dialSignaling: %v", err)
	}
	defer client.Close()

	select {
	case signal := <-received:
		if signal.Type != protocol.SignalAuth || signal.Token != "tok-77" {
			t.Errorf("first message = %+v, want auth with token", signal)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the auth message")
	}
}

func TestSignalClientSkipsUnknownTypes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// An unknown signal followed by a valid one; the client must
		// deliver only the valid one.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"renegotiate"}`))
		conn.WriteJSON(protocol.Signal{Type: protocol.SignalError, Error: "host busy"})
		// Hold the socket open until the client is done reading.
		conn.ReadMessage()
	}))
	t.Cleanup(server.Close)

	endpoint := testEndpoint(t, server)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := dialSignaling(ctx, endpoint.SignalURL(), "", testLogger())
	if err != nil {
		t.Fatalf("dialSignaling: %v", err)
	}
	defer client.Close()

	signal, err := client.recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if signal.Type != protocol.SignalError || signal.Error != "host busy" {
		t.Errorf("recv = %+v, want the error signal", signal)
	}
}

func TestSignalClientSendAfterClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	t.Cleanup(server.Close)

	endpoint := testEndpoint(t, server)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := dialSignaling(ctx, endpoint.SignalURL(), "", testLogger())
	if err != nil {
		t.Fatalf("dialSignaling: %v", err)
	}
	client.Close()
	client.Close() // idempotent

	offer, _ := json.Marshal(map[string]string{"type": "offer", "sdp": "v=0"})
	if err := client.send(protocol.Signal{Type: protocol.SignalOffer, Offer: offer}); err == nil {
		t.Error("send after Close succeeded")
	}
}

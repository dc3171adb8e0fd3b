// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/framelink/framelink/lib/clock"
	"github.com/framelink/framelink/protocol"
)

// Per-channel retransmit ceilings. Control messages are the most
// durable, input tolerates a couple of retries before staleness makes
// delivery pointless, and the bulk channels get a single retry.
const (
	controlRetransmits uint16 = 30
	inputRetransmits   uint16 = 2
	bulkRetransmits    uint16 = 1
)

const defaultNegotiationTimeout = 15 * time.Second

// PeerConfig parameterizes one peer transport instance.
type PeerConfig struct {
	Endpoint           Endpoint
	Token              string
	ICEServers         []string
	NegotiationTimeout time.Duration
	MaxBitrateKbps     int
	MaxFramerate       int
	Reconnect          ReconnectPolicy
}

// PeerTransport is the WebRTC transport: a peer connection negotiated
// over the signaling socket, carrying inbound media tracks and the
// five logical data channels. ICE candidates trickle both ways during
// negotiation rather than blocking on complete gathering, which
// shaves the common case down to the first viable pair.
//
// The transport owns its own reconnect loop: when the link drops it
// emits EventDisconnected, renegotiates from scratch with linear
// backoff, and emits EventReconnected or, once the budget is spent,
// EventFatal. Disconnect at any point halts the loop.
type PeerTransport struct {
	config PeerConfig
	clock  clock.Clock
	logger *slog.Logger

	events chan Event

	mu           sync.Mutex
	pc           *webrtc.PeerConnection
	signaling    *signalClient
	channels     map[protocol.Kind]*webrtc.DataChannel
	connected    bool
	reconnecting bool
	closed       bool

	sequence atomic.Uint32

	bytesSent      atomic.Uint64
	bytesReceived  atomic.Uint64
	framesReceived atomic.Uint64
	framesDropped  atomic.Uint64

	statsMu     sync.Mutex
	lastStatsAt time.Time
	lastBytes   uint64
}

var _ Transport = (*PeerTransport)(nil)

// NewPeer constructs a peer transport. Nothing touches the network
// until Connect.
func NewPeer(config PeerConfig, clk clock.Clock, logger *slog.Logger) *PeerTransport {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.NegotiationTimeout <= 0 {
		config.NegotiationTimeout = defaultNegotiationTimeout
	}
	return &PeerTransport{
		config: config,
		clock:  clk,
		logger: logger.With("transport", KindPeer),
		events: make(chan Event, eventBufferSize),
	}
}

func (t *PeerTransport) Kind() Kind { return KindPeer }

func (t *PeerTransport) Events() <-chan Event { return t.events }

// Connect runs one full negotiation: signaling dial, offer/answer
// exchange with trickled ICE, and the wait for the peer connection to
// reach the connected state.
func (t *PeerTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.dial(ctx); err != nil {
		return err
	}
	emitEvent(t.events, Event{Type: EventConnected})
	return nil
}

// dial performs a single negotiation attempt and installs the
// resulting connection on success. Used by both Connect and the
// reconnect loop.
func (t *PeerTransport) dial(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.NegotiationTimeout)
	defer cancel()

	signaling, err := dialSignaling(ctx, t.config.Endpoint.SignalURL(), t.config.Token, t.logger)
	if err != nil {
		return err
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		signaling.Close()
		return fmt.Errorf("registering codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers(t.config.ICEServers),
	})
	if err != nil {
		signaling.Close()
		return fmt.Errorf("creating peer connection: %w", err)
	}

	fail := func(err error) error {
		pc.Close()
		signaling.Close()
		return err
	}

	// Receive-only media: the viewer consumes the host's tracks and
	// never produces its own.
	for _, codecType := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(codecType, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fail(fmt.Errorf("adding %s transceiver: %w", codecType, err))
		}
	}

	channels := make(map[protocol.Kind]*webrtc.DataChannel, len(protocol.Kinds))
	for _, kind := range protocol.Kinds {
		dataChannel, err := pc.CreateDataChannel(string(kind), channelInit(kind))
		if err != nil {
			return fail(fmt.Errorf("creating %s channel: %w", kind, err))
		}
		t.watchChannel(kind, dataChannel)
		channels[kind] = dataChannel
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t.logger.Info("media track arrived", "kind", track.Kind().String(), "id", track.ID())
		emitEvent(t.events, Event{Type: EventMedia, Track: &MediaTrack{
			Kind: track.Kind().String(),
			ID:   track.ID(),
		}})
		go t.drainTrack(track)
	})

	var connectOnce sync.Once
	connected := make(chan struct{})
	failed := make(chan error, 1)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.logger.Debug("peer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			connectOnce.Do(func() { close(connected) })
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			select {
			case failed <- fmt.Errorf("peer connection entered %s", state):
			default:
			}
			t.handleLinkDown(fmt.Errorf("peer connection entered %s", state))
		}
	})

	// Trickle: every locally gathered candidate goes out the moment
	// it exists. The nil candidate marks end of gathering and is not
	// sent.
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		payload, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			t.logger.Warn("marshaling ICE candidate", "error", err)
			return
		}
		if err := signaling.send(protocol.Signal{Type: protocol.SignalICECandidate, Candidate: payload}); err != nil {
			t.logger.Warn("trickling ICE candidate", "error", err)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fail(fmt.Errorf("creating offer: %w", err))
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fail(fmt.Errorf("setting local description: %w", err))
	}
	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return fail(fmt.Errorf("marshaling offer: %w", err))
	}
	if err := signaling.send(protocol.Signal{Type: protocol.SignalOffer, Offer: offerJSON}); err != nil {
		return fail(fmt.Errorf("sending offer: %w", err))
	}

	go t.answerLoop(pc, signaling, failed)

	select {
	case <-connected:
	case err := <-failed:
		return fail(fmt.Errorf("peer negotiation failed: %w", err))
	case <-ctx.Done():
		return fail(fmt.Errorf("peer negotiation: %w", ctx.Err()))
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		pc.Close()
		signaling.Close()
		return ErrClosed
	}
	t.pc = pc
	t.signaling = signaling
	t.channels = channels
	t.connected = true
	// Cleared here, in the same hold that installs the connection: a
	// link-down racing the tail of a reconnect must not be swallowed
	// by the reconnecting guard.
	t.reconnecting = false
	t.mu.Unlock()

	t.statsMu.Lock()
	t.lastStatsAt = t.clock.Now()
	t.lastBytes = t.bytesReceived.Load()
	t.statsMu.Unlock()
	return nil
}

// answerLoop consumes inbound signals for the lifetime of the
// signaling socket: the answer completes negotiation, candidates keep
// trickling in afterward.
func (t *PeerTransport) answerLoop(pc *webrtc.PeerConnection, signaling *signalClient, failed chan<- error) {
	for {
		signal, err := signaling.recv(context.Background())
		if err != nil {
			return
		}
		switch signal.Type {
		case protocol.SignalAnswer:
			var answer webrtc.SessionDescription
			if err := json.Unmarshal(signal.Answer, &answer); err != nil {
				sendFailure(failed, fmt.Errorf("parsing answer: %w", err))
				return
			}
			if err := pc.SetRemoteDescription(answer); err != nil {
				sendFailure(failed, fmt.Errorf("applying answer: %w", err))
				return
			}
		case protocol.SignalICECandidate:
			var candidate webrtc.ICECandidateInit
			if err := json.Unmarshal(signal.Candidate, &candidate); err != nil {
				t.logger.Warn("parsing remote ICE candidate", "error", err)
				continue
			}
			if err := pc.AddICECandidate(candidate); err != nil {
				t.logger.Warn("adding remote ICE candidate", "error", err)
			}
		case protocol.SignalError:
			sendFailure(failed, fmt.Errorf("signaling error: %s", signal.Error))
			return
		}
	}
}

func sendFailure(failed chan<- error, err error) {
	select {
	case failed <- err:
	default:
	}
}

// watchChannel wires inbound message handling for one data channel.
func (t *PeerTransport) watchChannel(kind protocol.Kind, dataChannel *webrtc.DataChannel) {
	dataChannel.OnMessage(func(raw webrtc.DataChannelMessage) {
		t.bytesReceived.Add(uint64(len(raw.Data)))
		message, err := protocol.Decode(raw.Data)
		if err != nil {
			t.logger.Warn("dropping undecodable message", "channel", kind, "error", err)
			return
		}
		emitEvent(t.events, Event{Type: EventMessage, Message: message})
	})
	dataChannel.OnClose(func() {
		t.logger.Debug("data channel closed", "channel", kind)
	})
}

// drainTrack reads RTP off an inbound track to keep the frame and
// byte counters honest. The marker bit closes a frame; sequence gaps
// count as drops.
func (t *PeerTransport) drainTrack(track *webrtc.TrackRemote) {
	var lastSequence uint16
	var seen bool
	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		t.bytesReceived.Add(uint64(len(packet.Payload)))
		if packet.Marker {
			t.framesReceived.Add(1)
		}
		if seen {
			if gap := packet.SequenceNumber - lastSequence; gap > 1 {
				t.framesDropped.Add(uint64(gap - 1))
			}
		}
		lastSequence = packet.SequenceNumber
		seen = true
	}
}

// handleLinkDown transitions a connected transport into its reconnect
// loop. No-op during initial negotiation, during an ongoing reconnect,
// or after Disconnect.
func (t *PeerTransport) handleLinkDown(cause error) {
	t.mu.Lock()
	if t.closed || !t.connected || t.reconnecting {
		t.mu.Unlock()
		return
	}
	t.connected = false
	t.reconnecting = true
	pc, signaling := t.pc, t.signaling
	t.pc, t.signaling, t.channels = nil, nil, nil
	t.mu.Unlock()

	if signaling != nil {
		signaling.Close()
	}
	if pc != nil {
		pc.Close()
	}

	t.logger.Warn("peer link down", "error", cause)
	emitEvent(t.events, Event{Type: EventDisconnected, Err: cause})
	go t.reconnectLoop()
}

func (t *PeerTransport) reconnectLoop() {
	policy := t.config.Reconnect
	for attempt := 1; ; attempt++ {
		if policy.Exhausted(attempt) {
			t.mu.Lock()
			t.reconnecting = false
			t.mu.Unlock()
			err := fmt.Errorf("peer reconnect budget exhausted after %d attempts", policy.MaxAttempts)
			t.logger.Error("giving up on peer transport", "attempts", policy.MaxAttempts)
			emitEvent(t.events, Event{Type: EventFatal, Err: err})
			return
		}

		emitEvent(t.events, Event{Type: EventReconnecting, Attempt: attempt})
		t.clock.Sleep(policy.Delay(attempt))

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		err := t.dial(context.Background())
		if err == nil {
			t.logger.Info("peer transport reconnected", "attempt", attempt)
			emitEvent(t.events, Event{Type: EventReconnected, Attempt: attempt})
			return
		}
		t.logger.Warn("peer reconnect attempt failed", "attempt", attempt, "error", err)
	}
}

// Send serializes the envelope onto the data channel matching its
// kind. Control messages get a monotonic sequence number stamped here
// so ordering violations are observable on the far side.
func (t *PeerTransport) Send(message protocol.Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	connected := t.connected
	dataChannel := t.channels[message.Kind]
	t.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	if dataChannel == nil || dataChannel.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("%w: %s", ErrChannelNotReady, message.Kind)
	}

	if message.Kind == protocol.KindControl && message.Sequence == 0 {
		message.Sequence = t.sequence.Add(1)
	}
	wire, err := message.Encode()
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", message.Kind, err)
	}
	if err := dataChannel.Send(wire); err != nil {
		return fmt.Errorf("sending on %s channel: %w", message.Kind, err)
	}
	t.bytesSent.Add(uint64(len(wire)))
	return nil
}

func (t *PeerTransport) SendHeartbeat() error {
	now := t.clock.Now()
	message, err := protocol.New(protocol.KindControl, protocol.Heartbeat{SentAt: now.UnixMilli()}, now)
	if err != nil {
		return err
	}
	return t.Send(message)
}

// UpdateQuality notifies the host of the new tier on the control
// channel. The host adjusts its encoder; nothing renegotiates here.
func (t *PeerTransport) UpdateQuality(quality protocol.Quality) error {
	now := t.clock.Now()
	message, err := protocol.New(protocol.KindControl, t.qualityPayload(quality), now)
	if err != nil {
		return err
	}
	return t.Send(message)
}

// qualityPayload builds the tier-change payload, carrying the
// configured encoder ceilings so the host never has to guess them.
func (t *PeerTransport) qualityPayload(quality protocol.Quality) protocol.QualityChange {
	return protocol.QualityChange{
		Quality:        quality,
		MaxBitrateKbps: t.config.MaxBitrateKbps,
		MaxFramerate:   t.config.MaxFramerate,
	}
}

func (t *PeerTransport) Stats() *Stats {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return nil
	}

	received := t.bytesReceived.Load()
	stats := &Stats{
		BytesSent:      t.bytesSent.Load(),
		BytesReceived:  received,
		FramesReceived: t.framesReceived.Load(),
		FramesDropped:  t.framesDropped.Load(),
	}

	t.statsMu.Lock()
	now := t.clock.Now()
	if elapsed := now.Sub(t.lastStatsAt); elapsed > 0 && !t.lastStatsAt.IsZero() {
		delta := received - t.lastBytes
		stats.BitrateKbps = uint32(float64(delta*8) / elapsed.Seconds() / 1000)
	}
	t.lastStatsAt = now
	t.lastBytes = received
	t.statsMu.Unlock()
	return stats
}

// Disconnect tears everything down and halts any reconnect loop.
// Idempotent.
func (t *PeerTransport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	pc, signaling := t.pc, t.signaling
	t.pc, t.signaling, t.channels = nil, nil, nil
	t.mu.Unlock()

	if signaling != nil {
		signaling.Close()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			return fmt.Errorf("closing peer connection: %w", err)
		}
	}
	return nil
}

// channelInit maps a message kind to its delivery configuration:
// control and input stay ordered with distinct retry ceilings, the
// bulk channels trade ordering away for throughput.
func channelInit(kind protocol.Kind) *webrtc.DataChannelInit {
	switch kind {
	case protocol.KindControl:
		return &webrtc.DataChannelInit{
			Ordered:        boolPtr(true),
			MaxRetransmits: uint16Ptr(controlRetransmits),
		}
	case protocol.KindInput:
		return &webrtc.DataChannelInit{
			Ordered:        boolPtr(true),
			MaxRetransmits: uint16Ptr(inputRetransmits),
		}
	default:
		return &webrtc.DataChannelInit{
			Ordered:        boolPtr(false),
			MaxRetransmits: uint16Ptr(bulkRetransmits),
		}
	}
}

func iceServers(urls []string) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, url := range urls {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}
	return servers
}

func boolPtr(b bool) *bool       { return &b }
func uint16Ptr(n uint16) *uint16 { return &n }

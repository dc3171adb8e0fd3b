// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/framelink/framelink/input"
	"github.com/framelink/framelink/lib/clock"
	"github.com/framelink/framelink/protocol"
	"github.com/framelink/framelink/transport"
)

// The orchestrator is the input pipeline's sender.
var _ input.Sender = (*Orchestrator)(nil)

// Defaults applied by Config.withDefaults.
const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultStatsInterval     = 2 * time.Second
	defaultHistoryCapacity   = 16
)

var defaultReconnect = transport.ReconnectPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second}

// Config parameterizes the orchestrator. The reconnect policy here is
// the orchestrator's own budget, spent only after the active
// transport has given up on its internal one.
type Config struct {
	HeartbeatInterval time.Duration
	StatsInterval     time.Duration
	HistoryCapacity   int
	Reconnect         transport.ReconnectPolicy
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = defaultStatsInterval
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = defaultHistoryCapacity
	}
	if c.Reconnect.MaxAttempts == 0 && c.Reconnect.BaseDelay == 0 {
		c.Reconnect = defaultReconnect
	}
	return c
}

// HostSampler provides local host readings folded into stats events.
// The telemetry package's Sampler satisfies it; nil disables host
// telemetry.
type HostSampler interface {
	Sample() (cpuPercent float64, memoryUsedMB uint64)
}

// Orchestrator drives the session lifecycle from a single run loop.
// Construct with New, start the loop with Run, then use the public
// methods from any goroutine. Public methods block until Run has
// picked up the command, so Run must be started first.
type Orchestrator struct {
	config  Config
	factory TransportFactory
	sampler HostSampler
	clock   clock.Clock
	logger  *slog.Logger

	commands chan func()
	events   chan Event
	done     chan struct{}

	// mirror of the loop-owned state for cheap lock-free reads.
	stateAtomic atomic.Int32

	// active transport mirrored for the input fast path; SendInput
	// must not queue behind the run loop.
	activeAtomic atomic.Pointer[transport.Transport]

	// Everything below is owned by the run loop goroutine.
	state             State
	session           *Session
	options           ConnectOptions
	active            transport.Transport
	transportEvents   <-chan transport.Event
	pendingConnect    chan error
	epoch             uint64
	paused            bool
	reconnectAttempts int
	reconnectTick     <-chan time.Time
	heartbeatTicker   *clock.Ticker
	statsTicker       *clock.Ticker
	heartbeatTick     <-chan time.Time
	statsTick         <-chan time.Time
	history           []*Session
}

// New constructs an orchestrator. sampler may be nil.
func New(config Config, factory TransportFactory, sampler HostSampler, clk clock.Clock, logger *slog.Logger) *Orchestrator {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config:   config.withDefaults(),
		factory:  factory,
		sampler:  sampler,
		clock:    clk,
		logger:   logger.With("component", "orchestrator"),
		commands: make(chan func()),
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
	}
}

// Run executes the loop until ctx is canceled. Exactly one Run per
// orchestrator.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return ctx.Err()
		case command := <-o.commands:
			command()
		case event := <-o.transportEvents:
			o.handleTransportEvent(event)
		case <-o.heartbeatTick:
			o.handleHeartbeatTick()
		case <-o.statsTick:
			o.handleStatsTick()
		case <-o.reconnectTick:
			o.handleReconnectTick()
		}
	}
}

// Events is the orchestrator's notification stream. The channel is
// buffered; a consumer that stops reading loses events rather than
// stalling the loop.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// State reports the current connection state without touching the run
// loop.
func (o *Orchestrator) State() State {
	return State(o.stateAtomic.Load())
}

// do posts a command onto the run loop.
func (o *Orchestrator) do(command func()) error {
	select {
	case o.commands <- command:
		return nil
	case <-o.done:
		return ErrOrchestratorStopped
	}
}

// Connect validates the options, then runs the full attempt: peer
// transport first, relay fallback second. It blocks until the attempt
// settles or ctx expires; an expired ctx abandons the wait but not
// the attempt itself, which continues and settles on the loop.
func (o *Orchestrator) Connect(ctx context.Context, options ConnectOptions) error {
	normalized, err := options.normalize()
	if err != nil {
		return err
	}
	reply := make(chan error, 1)
	if err := o.do(func() { o.handleConnect(normalized, reply) }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrOrchestratorStopped
	}
}

// Disconnect tears down the current session, aborting any in-flight
// connect. Safe to call in any state; a no-session Disconnect is a
// no-op.
func (o *Orchestrator) Disconnect() error {
	reply := make(chan error, 1)
	if err := o.do(func() { o.handleDisconnect(reply) }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-o.done:
		return ErrOrchestratorStopped
	}
}

// UpdateQuality changes the session's quality tier and pushes it to
// the remote side best-effort. With no active session this logs a
// warning and does nothing.
func (o *Orchestrator) UpdateQuality(quality protocol.Quality) error {
	if _, err := protocol.ParseQuality(string(quality)); err != nil {
		return &ValidationError{Field: "quality", Reason: err.Error()}
	}
	reply := make(chan error, 1)
	if err := o.do(func() { o.handleUpdateQuality(quality, reply) }); err != nil {
		return err
	}
	return <-reply
}

// Pause suppresses the heartbeat and stats timers without touching
// the transport. The session stays connected.
func (o *Orchestrator) Pause() error {
	return o.do(func() { o.paused = true })
}

// Resume re-enables the timers after Pause.
func (o *Orchestrator) Resume() error {
	return o.do(func() { o.paused = false })
}

// ConnectionInfo returns a snapshot of the current session, or nil
// when none exists.
func (o *Orchestrator) ConnectionInfo() *Session {
	reply := make(chan *Session, 1)
	if err := o.do(func() {
		if o.session != nil {
			reply <- o.session.snapshot()
		} else {
			reply <- nil
		}
	}); err != nil {
		return nil
	}
	select {
	case snapshot := <-reply:
		return snapshot
	case <-o.done:
		return nil
	}
}

// History returns snapshots of past and current sessions, oldest
// first, bounded by the configured capacity.
func (o *Orchestrator) History() []*Session {
	reply := make(chan []*Session, 1)
	if err := o.do(func() {
		snapshots := make([]*Session, len(o.history))
		for i, record := range o.history {
			snapshots[i] = record.snapshot()
		}
		reply <- snapshots
	}); err != nil {
		return nil
	}
	select {
	case snapshots := <-reply:
		return snapshots
	case <-o.done:
		return nil
	}
}

// SendInput ships a captured input batch on the active transport.
// This is the input pipeline's fast path: it reads the mirrored
// transport pointer instead of queueing behind the run loop, and the
// batch is dropped, never re-queued, when the send fails.
func (o *Orchestrator) SendInput(batch protocol.InputBatch) error {
	active := o.activeAtomic.Load()
	if active == nil {
		return ErrNotConnected
	}
	message, err := protocol.New(protocol.KindInput, batch, o.clock.Now())
	if err != nil {
		return err
	}
	return (*active).Send(message)
}

// --- run loop internals ---

type settleResult struct {
	transport transport.Transport
	err       error
	reconnect bool
}

func (o *Orchestrator) handleConnect(options ConnectOptions, reply chan error) {
	switch o.state {
	case StateConnecting, StateConnected, StateReconnecting:
		reply <- ErrAlreadyConnected
		return
	}

	o.epoch++
	epoch := o.epoch
	o.options = options
	o.session = &Session{
		ID:        uuid.New(),
		Endpoint:  options.endpoint(),
		Quality:   options.Quality,
		StartedAt: o.clock.Now(),
	}
	o.pendingConnect = reply
	o.setState(StateConnecting)
	o.logger.Info("connecting",
		"session", o.session.ID,
		"host", options.Host,
		"port", options.Port,
		"quality", options.Quality)

	go o.attempt(epoch, options)
}

// attempt runs the peer-then-relay chain off-loop and posts the
// outcome back, tagged with the epoch it belongs to.
func (o *Orchestrator) attempt(epoch uint64, options ConnectOptions) {
	result := o.dialChain(options)
	if err := o.do(func() { o.handleSettle(epoch, result) }); err != nil {
		if result.transport != nil {
			result.transport.Disconnect()
		}
	}
}

func (o *Orchestrator) dialChain(options ConnectOptions) settleResult {
	ctx := context.Background()

	var peerErr error
	peerTransport, err := o.factory.New(transport.KindPeer, options)
	if err != nil {
		peerErr = err
	} else if peerErr = peerTransport.Connect(ctx); peerErr == nil {
		return settleResult{transport: peerTransport}
	} else {
		peerTransport.Disconnect()
	}
	o.logger.Warn("peer transport failed, falling back to relay", "error", peerErr)

	relayTransport, err := o.factory.New(transport.KindRelay, options)
	if err != nil {
		return settleResult{err: &ConnectError{PeerErr: peerErr, RelayErr: err}}
	}
	if relayErr := relayTransport.Connect(ctx); relayErr != nil {
		relayTransport.Disconnect()
		return settleResult{err: &ConnectError{PeerErr: peerErr, RelayErr: relayErr}}
	}
	return settleResult{transport: relayTransport}
}

func (o *Orchestrator) handleSettle(epoch uint64, result settleResult) {
	if epoch != o.epoch || o.session == nil {
		// A disconnect superseded this attempt; whatever it
		// established is torn down quietly.
		if result.transport != nil {
			result.transport.Disconnect()
		}
		return
	}

	if result.err != nil {
		if result.reconnect {
			o.logger.Warn("reconnect attempt failed",
				"attempt", o.reconnectAttempts, "error", result.err)
			o.scheduleReconnect(result.err)
			return
		}
		now := o.clock.Now()
		o.session.EndedAt = now
		o.session.Duration = now.Sub(o.session.StartedAt)
		o.setState(StateFailed)
		o.archive(o.session)
		snapshot := o.session.snapshot()
		// FAILED is terminal: drop the live reference so a later
		// Disconnect cannot rewrite the archived record.
		o.session = nil
		o.logger.Error("connect failed", "session", snapshot.ID, "error", result.err)
		o.emit(Event{Type: EventConnectionFailed, Err: result.err, Session: snapshot})
		o.replyPending(result.err)
		return
	}

	o.attach(result.transport)
	if o.session.ConnectedAt.IsZero() {
		o.session.ConnectedAt = o.clock.Now()
	}
	o.session.Kind = result.transport.Kind()
	o.reconnectAttempts = 0
	o.setState(StateConnected)
	o.archive(o.session)
	o.startTickers()

	// Tell the host which tier the session wants right away.
	if err := o.active.UpdateQuality(o.session.Quality); err != nil {
		o.logger.Warn("initial quality push failed", "error", err)
	}

	o.logger.Info("connected",
		"session", o.session.ID,
		"transport", o.session.Kind,
		"reconnect", result.reconnect)
	if result.reconnect {
		o.replyPending(nil)
		return
	}
	o.emit(Event{Type: EventConnected, Session: o.session.snapshot()})
	o.replyPending(nil)
}

func (o *Orchestrator) handleDisconnect(reply chan error) {
	// Invalidate any in-flight attempt and release its caller.
	o.epoch++
	if o.pendingConnect != nil {
		o.pendingConnect <- ErrConnectAborted
		o.pendingConnect = nil
	}
	o.stopTickers()
	o.reconnectTick = nil
	o.reconnectAttempts = 0
	o.paused = false

	var err error
	if o.active != nil {
		err = o.detach()
	}

	if o.session != nil {
		now := o.clock.Now()
		o.session.EndedAt = now
		o.session.Duration = now.Sub(o.session.StartedAt)
		o.setState(StateDisconnected)
		o.archive(o.session)
		snapshot := o.session.snapshot()
		o.session = nil
		o.logger.Info("disconnected", "session", snapshot.ID, "duration", snapshot.Duration)
		o.emit(Event{Type: EventDisconnected, Session: snapshot})
	} else {
		o.setState(StateDisconnected)
	}
	reply <- err
}

func (o *Orchestrator) handleUpdateQuality(quality protocol.Quality, reply chan error) {
	defer func() { reply <- nil }()
	if o.session == nil || o.active == nil {
		o.logger.Warn("quality change with no active session", "quality", quality)
		return
	}
	o.session.Quality = quality
	if err := o.active.UpdateQuality(quality); err != nil {
		o.logger.Warn("quality push failed", "quality", quality, "error", err)
	}
	o.logger.Info("quality changed", "session", o.session.ID, "quality", quality)
	o.emit(Event{Type: EventQualityChanged, Quality: quality, Session: o.session.snapshot()})
}

func (o *Orchestrator) handleTransportEvent(event transport.Event) {
	switch event.Type {
	case transport.EventDisconnected:
		// The transport's internal reconnect loop takes over;
		// reflect it.
		if o.state == StateConnected {
			o.setState(StateReconnecting)
		}
	case transport.EventReconnecting:
		if o.state == StateConnected {
			o.setState(StateReconnecting)
		}
	case transport.EventReconnected:
		if o.state == StateReconnecting {
			o.setState(StateConnected)
		}
	case transport.EventFatal:
		o.beginReconnect(event.Err)
	case transport.EventMessage:
		o.handleInbound(event.Message)
	case transport.EventMedia:
		o.emit(Event{Type: EventMediaTrack, Track: event.Track, Session: o.sessionSnapshot()})
	}
}

// beginReconnect starts the orchestrator-level reconnect loop after
// the active transport declared itself unusable. Attempts go against
// the kind the session was frozen to.
func (o *Orchestrator) beginReconnect(cause error) {
	if o.session == nil {
		return
	}
	o.stopTickers()
	o.detach()
	if o.state != StateReconnecting {
		o.setState(StateReconnecting)
	}
	o.reconnectAttempts = 0
	o.logger.Warn("transport lost, reconnecting", "session", o.session.ID, "error", cause)
	o.scheduleReconnect(cause)
}

// scheduleReconnect arms the backoff timer for the next attempt, or
// declares exhaustion. Exhaustion emits EventReconnectionFailed
// exactly once and deliberately leaves the state machine where it
// stands; only Disconnect or the consumer reacting to the event moves
// it on.
func (o *Orchestrator) scheduleReconnect(cause error) {
	o.reconnectAttempts++
	attempt := o.reconnectAttempts
	if o.config.Reconnect.Exhausted(attempt) {
		o.reconnectTick = nil
		o.logger.Error("reconnection budget exhausted",
			"session", o.session.ID, "attempts", o.config.Reconnect.MaxAttempts)
		o.emit(Event{Type: EventReconnectionFailed, Err: cause, Session: o.session.snapshot()})
		return
	}
	delay := o.config.Reconnect.Delay(attempt)
	o.logger.Info("scheduling reconnect", "attempt", attempt, "delay", delay)
	o.reconnectTick = o.clock.After(delay)
}

func (o *Orchestrator) handleReconnectTick() {
	o.reconnectTick = nil
	if o.state != StateReconnecting || o.session == nil {
		return
	}
	epoch := o.epoch
	kind := o.session.Kind
	options := o.options
	go func() {
		newTransport, err := o.factory.New(kind, options)
		result := settleResult{reconnect: true}
		if err != nil {
			result.err = err
		} else if connectErr := newTransport.Connect(context.Background()); connectErr != nil {
			newTransport.Disconnect()
			result.err = connectErr
		} else {
			result.transport = newTransport
		}
		if postErr := o.do(func() { o.handleSettle(epoch, result) }); postErr != nil {
			if result.transport != nil {
				result.transport.Disconnect()
			}
		}
	}()
}

func (o *Orchestrator) handleHeartbeatTick() {
	if o.paused || o.active == nil {
		return
	}
	if err := o.active.SendHeartbeat(); err != nil {
		o.logger.Warn("heartbeat failed", "error", err)
	}
}

func (o *Orchestrator) handleStatsTick() {
	if o.paused || o.active == nil || o.session == nil {
		return
	}
	stats := o.active.Stats()
	if stats == nil {
		return
	}

	o.session.Counters.BytesSent = stats.BytesSent
	o.session.Counters.BytesReceived = stats.BytesReceived
	o.session.Counters.FramesReceived = stats.FramesReceived
	o.session.Counters.FramesDropped = stats.FramesDropped
	if stats.LatencyMS > 0 {
		o.session.Counters.LatencyMS = stats.LatencyMS
	}

	metrics := &protocol.MetricsPayload{
		LatencyMS:     o.session.Counters.LatencyMS,
		BitrateKbps:   stats.BitrateKbps,
		FrameDrops:    uint32(stats.FramesDropped),
		BytesSent:     stats.BytesSent,
		BytesReceived: stats.BytesReceived,
	}
	if o.sampler != nil {
		metrics.CPUPercent, metrics.MemoryUsedMB = o.sampler.Sample()
	}
	o.emit(Event{Type: EventStatsUpdated, Metrics: metrics, Session: o.session.snapshot()})
}

// handleInbound consumes messages the orchestrator itself cares
// about: heartbeat echoes feed the latency counter, metrics payloads
// merge into the session. Everything else is a collaborator's problem
// and is only logged.
func (o *Orchestrator) handleInbound(message protocol.Message) {
	switch message.Kind {
	case protocol.KindControl:
		var heartbeat protocol.Heartbeat
		if err := message.DecodePayload(&heartbeat); err == nil && heartbeat.SentAt > 0 {
			rtt := o.clock.Now().UnixMilli() - heartbeat.SentAt
			if rtt >= 0 && o.session != nil {
				o.session.Counters.LatencyMS = uint32(rtt)
			}
		}
	case protocol.KindMetrics:
		var metrics protocol.MetricsPayload
		if err := message.DecodePayload(&metrics); err != nil {
			o.logger.Warn("bad metrics payload", "error", err)
			return
		}
		if o.session != nil && metrics.LatencyMS > 0 {
			o.session.Counters.LatencyMS = metrics.LatencyMS
		}
	default:
		o.logger.Debug("inbound message", "kind", message.Kind)
	}
}

func (o *Orchestrator) attach(active transport.Transport) {
	o.active = active
	o.transportEvents = active.Events()
	o.activeAtomic.Store(&active)
}

func (o *Orchestrator) detach() error {
	if o.active == nil {
		return nil
	}
	err := o.active.Disconnect()
	o.active = nil
	o.transportEvents = nil
	o.activeAtomic.Store(nil)
	return err
}

func (o *Orchestrator) startTickers() {
	o.stopTickers()
	o.heartbeatTicker = o.clock.NewTicker(o.config.HeartbeatInterval)
	o.heartbeatTick = o.heartbeatTicker.C
	o.statsTicker = o.clock.NewTicker(o.config.StatsInterval)
	o.statsTick = o.statsTicker.C
}

func (o *Orchestrator) stopTickers() {
	if o.heartbeatTicker != nil {
		o.heartbeatTicker.Stop()
		o.heartbeatTicker = nil
		o.heartbeatTick = nil
	}
	if o.statsTicker != nil {
		o.statsTicker.Stop()
		o.statsTicker = nil
		o.statsTick = nil
	}
}

func (o *Orchestrator) setState(state State) {
	if o.state == state {
		return
	}
	o.state = state
	o.stateAtomic.Store(int32(state))
	if o.session != nil {
		o.session.State = state
	}
	o.logger.Info("state changed", "state", state)
	o.emit(Event{Type: EventStateChanged, State: state, Session: o.sessionSnapshot()})
}

// archive adds a session to bounded history exactly once.
func (o *Orchestrator) archive(record *Session) {
	if record.inHistory {
		return
	}
	record.inHistory = true
	o.history = append(o.history, record)
	if len(o.history) > o.config.HistoryCapacity {
		o.history = o.history[len(o.history)-o.config.HistoryCapacity:]
	}
}

func (o *Orchestrator) replyPending(err error) {
	if o.pendingConnect != nil {
		o.pendingConnect <- err
		o.pendingConnect = nil
	}
}

func (o *Orchestrator) sessionSnapshot() *Session {
	if o.session == nil {
		return nil
	}
	return o.session.snapshot()
}

func (o *Orchestrator) emit(event Event) {
	select {
	case o.events <- event:
	default:
		o.logger.Warn("dropping event, consumer lagging", "type", event.Type)
	}
}

func (o *Orchestrator) shutdown() {
	o.epoch++
	if o.pendingConnect != nil {
		o.pendingConnect <- ErrOrchestratorStopped
		o.pendingConnect = nil
	}
	o.stopTickers()
	o.reconnectTick = nil
	o.detach()
	if o.session != nil {
		now := o.clock.Now()
		o.session.EndedAt = now
		o.session.Duration = now.Sub(o.session.StartedAt)
		o.session.State = StateDisconnected
		o.archive(o.session)
		o.session = nil
	}
	o.stateAtomic.Store(int32(StateDisconnected))
	o.state = StateDisconnected
}

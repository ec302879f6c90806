package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usul27/pknx/knx"
	"github.com/usul27/pknx/knxnet"
)

// State is the tunneling connection lifecycle state.
type State int32

// Connection states. Idle is initial; Disconnected is terminal until
// Connect is called again.
const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Stats holds operational statistics.
type Stats struct {
	FramesTx         uint64
	FramesRx         uint64
	TelegramsRx      uint64
	AcksRx           uint64
	AckMismatches    uint64
	Retransmits      uint64
	DecodeErrors     uint64 // inbound frames dropped at the dispatcher
	TelegramsDropped uint64 // telegrams dropped due to full callback queue
	SubscriberDrops  uint64
	Reconnects       uint64
	State            State
	Channel          uint8
}

// ReadOptions controls GroupRead behavior.
type ReadOptions struct {
	// UseCache serves the read from the cache when a fresh entry
	// exists, without touching the network.
	UseCache bool

	// MaxCacheAge bounds how old a cache entry may be to count as
	// fresh. Zero means any age, as long as the entry is not stale.
	MaxCacheAge time.Duration

	// BusTimeout is the wait for a GroupValueResponse after the read
	// request went out. Zero means the configured default.
	BusTimeout time.Duration
}

// noAgeBound stands in for "any age" when MaxCacheAge is zero.
const noAgeBound = 365 * 24 * time.Hour

// session is the per-connection context handed out by the gateway.
// Created on a successful CONNECT_RESPONSE, destroyed on disconnect.
type session struct {
	channel  uint8
	dataAddr net.Addr

	// Inbound duplicate suppression; touched only by the dispatch loop.
	lastSeqIn uint8
	hasSeqIn  bool
}

type readWaiter struct {
	ch chan []byte
}

// Tunnel is one KNXnet/IP tunneling connection to a gateway.
//
// Thread safety: all methods are safe for concurrent use. Inbound
// frames are processed by a single dispatch loop, so telegrams reach
// the cache and subscribers in network arrival order. Telegram
// callbacks run on a bounded worker pool; a full queue drops telegrams
// rather than stalling ack processing.
type Tunnel struct {
	cfg       Config
	transport *Transport
	gateway   net.Addr
	localHPAI knxnet.HPAI

	stateMu       sync.RWMutex
	state         State
	sess          *session
	heartbeatStop *closeOnce

	corr  *correlator
	cache *Cache

	// Control-plane waiters, one at a time each.
	waiterMu         sync.Mutex
	connectWaiter    chan knxnet.ConnectResponse
	heartbeatWaiter  chan knxnet.ConnectionStateResponse
	disconnectWaiter chan knxnet.DisconnectResponse

	// Pending group reads by destination address.
	readMu      sync.Mutex
	readWaiters map[uint16][]*readWaiter

	onTelegram    func(knx.Telegram)
	onStateChange func(State)
	callbackMu    sync.RWMutex

	callbackQueue chan knx.Telegram
	stateEvents   chan State

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	telegramsRx      atomic.Uint64
	acksRx           atomic.Uint64
	decodeErrors     atomic.Uint64
	telegramsDropped atomic.Uint64
	reconnects       atomic.Uint64
}

// New wraps an already-open UDP socket into a tunnel client for the
// given gateway control endpoint. The connection is not established
// until Connect is called.
func New(conn net.PacketConn, gateway *net.UDPAddr, cfg Config) (*Tunnel, error) {
	local, err := localHPAIFor(conn, gateway)
	if err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()
	t := &Tunnel{
		cfg:           cfg,
		transport:     NewTransport(conn),
		gateway:       gateway,
		localHPAI:     local,
		state:         StateIdle,
		corr:          newCorrelator(),
		cache:         NewCache(cfg.SubscriberBuffer),
		readWaiters:   make(map[uint16][]*readWaiter),
		callbackQueue: make(chan knx.Telegram, callbackQueueSize),
		stateEvents:   make(chan State, 16),
		done:          newCloseOnce(),
	}

	t.wg.Add(1)
	go t.dispatchLoop()

	t.wg.Add(1)
	go t.stateNotifier()

	for i := 0; i < callbackWorkerCount; i++ {
		t.wg.Add(1)
		go t.callbackWorker()
	}

	return t, nil
}

// localHPAIFor derives the HPAI the gateway should answer to. A socket
// bound to the unspecified address needs a concrete outbound IP.
func localHPAIFor(conn net.PacketConn, gateway *net.UDPAddr) (knxnet.HPAI, error) {
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return knxnet.HPAI{}, fmt.Errorf("tunnel: socket is not UDP (%T)", conn.LocalAddr())
	}

	ip := local.IP
	if ip == nil || ip.IsUnspecified() {
		probe, err := net.Dial("udp4", gateway.String())
		if err != nil {
			return knxnet.HPAI{}, fmt.Errorf("tunnel: cannot determine local IP: %w", err)
		}
		ip = probe.LocalAddr().(*net.UDPAddr).IP
		probe.Close()
	}

	return knxnet.HPAI{IP: ip.To4(), Port: uint16(local.Port)}, nil
}

// Connect establishes the tunneling connection. Safe to call again
// from Disconnected; a repeat call while connecting or connected
// fails with ErrAlreadyConnected.
func (t *Tunnel) Connect(ctx context.Context) error {
	if t.isClosed() {
		return ErrClosed
	}

	t.stateMu.Lock()
	switch t.state {
	case StateIdle, StateDisconnected:
	default:
		t.stateMu.Unlock()
		return ErrAlreadyConnected
	}
	wasDown := t.state == StateDisconnected
	t.setStateLocked(StateConnecting)
	t.stateMu.Unlock()

	waiter := make(chan knxnet.ConnectResponse, 1)
	t.waiterMu.Lock()
	t.connectWaiter = waiter
	t.waiterMu.Unlock()
	defer func() {
		t.waiterMu.Lock()
		t.connectWaiter = nil
		t.waiterMu.Unlock()
	}()

	frame := knxnet.EncodeConnectRequest(t.localHPAI, t.localHPAI)
	if err := t.transport.Send(frame, t.gateway); err != nil {
		t.setState(StateDisconnected)
		return fmt.Errorf("tunnel: send connect request: %w", err)
	}

	timer := time.NewTimer(t.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case resp := <-waiter:
		if resp.Status != knxnet.StatusNoError {
			t.setState(StateDisconnected)
			return fmt.Errorf("%w: status 0x%02X", ErrConnectionRefused, resp.Status)
		}
		t.establishSession(resp, wasDown)
		return nil

	case <-timer.C:
		t.setState(StateDisconnected)
		return fmt.Errorf("%w: no response within %s", ErrConnectTimeout, t.cfg.ConnectTimeout)

	case <-ctx.Done():
		t.setState(StateDisconnected)
		return ctx.Err()

	case <-t.done.Done():
		return ErrClosed
	}
}

func (t *Tunnel) establishSession(resp knxnet.ConnectResponse, wasDown bool) {
	dataAddr := net.Addr(t.gateway)
	if ep := resp.DataEndpoint; len(ep.IP) == 4 && !ep.IP.IsUnspecified() && ep.Port != 0 {
		dataAddr = ep.UDPAddr()
	}

	stop := newCloseOnce()

	t.stateMu.Lock()
	t.sess = &session{channel: resp.Channel, dataAddr: dataAddr}
	t.heartbeatStop = stop
	t.corr.reset()
	t.setStateLocked(StateConnected)
	t.stateMu.Unlock()

	if wasDown {
		t.reconnects.Add(1)
	}

	t.wg.Add(1)
	go t.heartbeatLoop(resp.Channel, stop)

	t.logInfo("tunnel connected", "channel", resp.Channel, "data_endpoint", dataAddr.String())
}

// Disconnect tears the connection down, best-effort: a missing
// DISCONNECT_RESPONSE still ends in Disconnected.
func (t *Tunnel) Disconnect(ctx context.Context) error {
	t.stateMu.Lock()
	if t.state != StateConnected {
		t.stateMu.Unlock()
		return ErrNotConnected
	}
	sess := t.sess
	stop := t.heartbeatStop
	t.setStateLocked(StateDisconnecting)
	t.stateMu.Unlock()

	if stop != nil {
		stop.Close()
	}

	waiter := make(chan knxnet.DisconnectResponse, 1)
	t.waiterMu.Lock()
	t.disconnectWaiter = waiter
	t.waiterMu.Unlock()
	defer func() {
		t.waiterMu.Lock()
		t.disconnectWaiter = nil
		t.waiterMu.Unlock()
	}()

	frame := knxnet.EncodeDisconnectRequest(sess.channel, t.localHPAI)
	if err := t.transport.Send(frame, t.gateway); err != nil {
		t.logWarn("send disconnect request failed", "error", err)
	} else {
		timer := time.NewTimer(t.cfg.DisconnectTimeout)
		select {
		case <-waiter:
		case <-timer.C:
		case <-ctx.Done():
		case <-t.done.Done():
		}
		timer.Stop()
	}

	t.teardown()
	t.logInfo("tunnel disconnected", "channel", sess.channel)
	return nil
}

// teardown finalizes the transition to Disconnected and fails
// everything still in flight.
func (t *Tunnel) teardown() {
	t.stateMu.Lock()
	t.sess = nil
	t.heartbeatStop = nil
	t.setStateLocked(StateDisconnected)
	t.stateMu.Unlock()

	t.corr.failPending(ErrConnectionLost)
	t.failReadWaiters()
	t.cache.MarkAllStale()
}

// connectionLost declares the session dead: all pending calls fail
// with ErrConnectionLost and the cache goes stale. Reconnection is the
// application's decision via the state-change callback.
func (t *Tunnel) connectionLost(reason string) {
	t.stateMu.Lock()
	if t.state != StateConnected && t.state != StateDisconnecting {
		t.stateMu.Unlock()
		return
	}
	stop := t.heartbeatStop
	t.stateMu.Unlock()

	if stop != nil {
		stop.Close()
	}

	t.logWarn("connection lost", "reason", reason)
	t.teardown()
}

// GroupWrite sends a group write and waits for the gateway's ack.
// Payloads over 14 bytes are rejected before any network activity.
func (t *Tunnel) GroupWrite(ctx context.Context, ga knx.GroupAddress, data []byte) error {
	if err := knx.ValidatePayload(data); err != nil {
		return err
	}
	return t.sendTelegram(ctx, knx.NewWriteTelegram(ga, data))
}

// GroupRead resolves the value of a group address. With UseCache a
// fresh cache entry is returned without touching the network;
// otherwise a GroupValueRead goes out and the matching
// GroupValueResponse is awaited up to BusTimeout.
func (t *Tunnel) GroupRead(ctx context.Context, ga knx.GroupAddress, opts ReadOptions) ([]byte, error) {
	if opts.UseCache {
		maxAge := opts.MaxCacheAge
		if maxAge == 0 {
			maxAge = noAgeBound
		}
		if value, err := t.cache.Read(ga, maxAge); err == nil {
			return value, nil
		}
	}

	busTimeout := opts.BusTimeout
	if busTimeout == 0 {
		busTimeout = t.cfg.ReadTimeout
	}

	waiter := t.addReadWaiter(ga)
	defer t.removeReadWaiter(ga, waiter)

	if err := t.sendTelegram(ctx, knx.NewReadTelegram(ga)); err != nil {
		return nil, err
	}

	timer := time.NewTimer(busTimeout)
	defer timer.Stop()

	select {
	case value, ok := <-waiter.ch:
		if !ok {
			return nil, ErrConnectionLost
		}
		return value, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no response from %s within %s", ErrReadTimeout, ga, busTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done.Done():
		return nil, ErrClosed
	}
}

// GroupToggle reads the current 1-bit value of ga (cache-first when
// useCache is set) and writes the inverse.
func (t *Tunnel) GroupToggle(ctx context.Context, ga knx.GroupAddress, useCache bool) error {
	value, err := t.GroupRead(ctx, ga, ReadOptions{UseCache: useCache})
	if err != nil {
		return err
	}
	if len(value) != 1 || value[0] > 1 {
		return fmt.Errorf("%w: %s holds % X", ErrNotToggleable, ga, value)
	}
	return t.GroupWrite(ctx, ga, []byte{1 - value[0]})
}

// sendTelegram wraps the telegram into a tunneling request and runs it
// through the correlator. An unacknowledged request after the single
// retransmit kills the session.
func (t *Tunnel) sendTelegram(ctx context.Context, tel knx.Telegram) error {
	// Serialize senders: the protocol allows one outstanding request.
	t.corr.sendMu.Lock()
	defer t.corr.sendMu.Unlock()

	sess, ok := t.currentSession()
	if !ok {
		return ErrNotConnected
	}

	seq := t.corr.nextSeq()
	frame := knxnet.EncodeTunnelingRequest(sess.channel, seq, tel)

	err := t.corr.sendAndAwaitAck(ctx, seq, frame, func(b []byte) error {
		return t.transport.Send(b, sess.dataAddr)
	}, t.cfg.AckTimeout)

	if errors.Is(err, ErrAckTimeout) {
		t.connectionLost("ack timeout")
	}
	return err
}

// Subscribe streams cache updates for one group address.
func (t *Tunnel) Subscribe(ga knx.GroupAddress) *Subscription {
	return t.cache.Subscribe(ga)
}

// SubscribeAll streams cache updates for every group address.
func (t *Tunnel) SubscribeAll() *Subscription {
	return t.cache.SubscribeAll()
}

// Cache exposes the group address cache for direct inspection.
func (t *Tunnel) Cache() *Cache {
	return t.cache
}

// State returns a snapshot of the connection state.
func (t *Tunnel) State() State {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.state
}

// IsConnected reports whether the tunnel is established.
func (t *Tunnel) IsConnected() bool {
	return t.State() == StateConnected
}

// Stats returns current operational statistics.
func (t *Tunnel) Stats() Stats {
	s := Stats{
		FramesTx:         t.transport.FramesSent(),
		FramesRx:         t.transport.FramesReceived(),
		TelegramsRx:      t.telegramsRx.Load(),
		AcksRx:           t.acksRx.Load(),
		AckMismatches:    t.corr.mismatches.Load(),
		Retransmits:      t.corr.retransmits.Load(),
		DecodeErrors:     t.decodeErrors.Load(),
		TelegramsDropped: t.telegramsDropped.Load(),
		SubscriberDrops:  t.cache.Drops(),
		Reconnects:       t.reconnects.Load(),
		State:            t.State(),
	}
	t.stateMu.RLock()
	if t.sess != nil {
		s.Channel = t.sess.channel
	}
	t.stateMu.RUnlock()
	return s
}

// SetOnTelegram sets the callback for telegrams observed on the bus.
// The callback runs on a bounded worker pool; panics are recovered.
func (t *Tunnel) SetOnTelegram(callback func(knx.Telegram)) {
	t.callbackMu.Lock()
	t.onTelegram = callback
	t.callbackMu.Unlock()
}

// SetOnStateChange sets the callback for connection state transitions.
// It runs on its own goroutine, so it may call Connect directly.
func (t *Tunnel) SetOnStateChange(callback func(State)) {
	t.callbackMu.Lock()
	t.onStateChange = callback
	t.callbackMu.Unlock()
}

// SetLogger sets the logger for this tunnel.
func (t *Tunnel) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// Close tears down the connection if needed and releases the socket.
// Safe to call multiple times.
func (t *Tunnel) Close() error {
	if t.State() == StateConnected {
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.DisconnectTimeout)
		_ = t.Disconnect(ctx)
		cancel()
	}

	t.done.Close()
	t.transport.Stop()
	t.wg.Wait()
	t.logInfo("tunnel closed")
	return nil
}

func (t *Tunnel) isClosed() bool {
	select {
	case <-t.done.Done():
		return true
	default:
		return false
	}
}

func (t *Tunnel) currentSession() (*session, bool) {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	if t.state != StateConnected || t.sess == nil {
		return nil, false
	}
	return t.sess, true
}

// setStateLocked updates the state and queues the change event.
// Caller holds stateMu.
func (t *Tunnel) setStateLocked(s State) {
	if t.state == s {
		return
	}
	t.state = s
	for {
		select {
		case t.stateEvents <- s:
			return
		default:
		}
		// Queue full: evict the oldest event so the newest state is
		// never the one lost. Intermediate states may be skipped, the
		// final state is always delivered.
		select {
		case <-t.stateEvents:
		default:
		}
	}
}

func (t *Tunnel) setState(s State) {
	t.stateMu.Lock()
	t.setStateLocked(s)
	t.stateMu.Unlock()
}

// dispatchLoop is the single consumer of inbound frames. Control-plane
// replies go to their waiters, acks to the correlator, bus telegrams to
// the cache; undecodable frames are dropped and counted.
func (t *Tunnel) dispatchLoop() {
	defer t.wg.Done()

	for pkt := range t.transport.Recv() {
		svc, err := knxnet.Decode(pkt.Data)
		if err != nil {
			t.decodeErrors.Add(1)
			t.logDebug("dropping undecodable frame", "error", err, "from", pkt.Addr.String())
			continue
		}

		switch s := svc.(type) {
		case knxnet.ConnectResponse:
			t.deliverConnect(s)
		case knxnet.ConnectionStateResponse:
			t.deliverHeartbeat(s)
		case knxnet.DisconnectResponse:
			t.deliverDisconnect(s)
		case knxnet.DisconnectRequest:
			t.handleServerDisconnect(s, pkt.Addr)
		case knxnet.TunnelingAck:
			t.acksRx.Add(1)
			t.corr.handleAck(s.Seq, s.Status)
		case knxnet.TunnelingRequest:
			t.handleTunnelingRequest(s, pkt.Addr)
		case knxnet.SearchResponse:
			// Discovery runs on its own socket; stray responses here
			// are noise.
		}
	}
}

func (t *Tunnel) deliverConnect(resp knxnet.ConnectResponse) {
	t.waiterMu.Lock()
	waiter := t.connectWaiter
	t.waiterMu.Unlock()
	if waiter != nil {
		select {
		case waiter <- resp:
		default:
		}
	}
}

func (t *Tunnel) deliverHeartbeat(resp knxnet.ConnectionStateResponse) {
	t.waiterMu.Lock()
	waiter := t.heartbeatWaiter
	t.waiterMu.Unlock()
	if waiter != nil {
		select {
		case waiter <- resp:
		default:
		}
	}
}

func (t *Tunnel) deliverDisconnect(resp knxnet.DisconnectResponse) {
	t.waiterMu.Lock()
	waiter := t.disconnectWaiter
	t.waiterMu.Unlock()
	if waiter != nil {
		select {
		case waiter <- resp:
		default:
		}
	}
}

// handleServerDisconnect acks a server-initiated teardown and drops
// the session immediately.
func (t *Tunnel) handleServerDisconnect(req knxnet.DisconnectRequest, from net.Addr) {
	resp := knxnet.EncodeDisconnectResponse(req.Channel, knxnet.StatusNoError)
	if err := t.transport.Send(resp, from); err != nil {
		t.logWarn("send disconnect response failed", "error", err)
	}

	sess, ok := t.currentSession()
	if ok && req.Channel == sess.channel {
		t.connectionLost("server disconnect")
	}
}

// handleTunnelingRequest acks an inbound bus telegram and hands it to
// the cache, the read waiters, and the callback pool. The ack goes out
// before any processing; duplicates (same sequence number again) are
// acked but not re-delivered.
func (t *Tunnel) handleTunnelingRequest(req knxnet.TunnelingRequest, from net.Addr) {
	ack := knxnet.EncodeTunnelingAck(req.Channel, req.Seq, knxnet.StatusNoError)
	if err := t.transport.Send(ack, from); err != nil {
		t.logWarn("send tunneling ack failed", "error", err)
	}

	sess, ok := t.currentSession()
	if !ok || req.Channel != sess.channel {
		return
	}

	if sess.hasSeqIn && sess.lastSeqIn == req.Seq {
		t.logDebug("duplicate tunneling request", "seq", req.Seq)
		return
	}
	sess.lastSeqIn = req.Seq
	sess.hasSeqIn = true

	t.telegramsRx.Add(1)
	tel := req.Telegram

	t.cache.Observe(tel)

	if tel.IsResponse() {
		t.deliverReadWaiters(tel)
	}

	t.callbackMu.RLock()
	hasCallback := t.onTelegram != nil
	t.callbackMu.RUnlock()

	if hasCallback {
		select {
		case t.callbackQueue <- tel:
		default:
			// Queue full; drop rather than stall ack processing.
			t.telegramsDropped.Add(1)
		}
	}
}

func (t *Tunnel) addReadWaiter(ga knx.GroupAddress) *readWaiter {
	w := &readWaiter{ch: make(chan []byte, 1)}
	key := ga.ToUint16()
	t.readMu.Lock()
	t.readWaiters[key] = append(t.readWaiters[key], w)
	t.readMu.Unlock()
	return w
}

func (t *Tunnel) removeReadWaiter(ga knx.GroupAddress, w *readWaiter) {
	key := ga.ToUint16()
	t.readMu.Lock()
	defer t.readMu.Unlock()
	waiters := t.readWaiters[key]
	for i, candidate := range waiters {
		if candidate == w {
			t.readWaiters[key] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(t.readWaiters[key]) == 0 {
		delete(t.readWaiters, key)
	}
}

func (t *Tunnel) deliverReadWaiters(tel knx.Telegram) {
	key := tel.Destination.ToUint16()

	t.readMu.Lock()
	waiters := t.readWaiters[key]
	delete(t.readWaiters, key)
	t.readMu.Unlock()

	for _, w := range waiters {
		value := make([]byte, len(tel.Data))
		copy(value, tel.Data)
		select {
		case w.ch <- value:
		default:
		}
	}
}

// failReadWaiters closes every pending read channel, surfacing
// ErrConnectionLost to their callers.
func (t *Tunnel) failReadWaiters() {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	for key, waiters := range t.readWaiters {
		for _, w := range waiters {
			close(w.ch)
		}
		delete(t.readWaiters, key)
	}
}

// heartbeatLoop probes the gateway with CONNECTIONSTATE_REQUESTs. Any
// missed or failed probe is fatal to the session.
func (t *Tunnel) heartbeatLoop(channel uint8, stop *closeOnce) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop.Done():
			return
		case <-t.done.Done():
			return
		case <-ticker.C:
		}

		if !t.probe(channel, stop) {
			t.connectionLost("heartbeat timeout")
			return
		}
	}
}

// probe sends one heartbeat and awaits its response. Returns false
// when the gateway failed to answer in time.
func (t *Tunnel) probe(channel uint8, stop *closeOnce) bool {
	waiter := make(chan knxnet.ConnectionStateResponse, 1)
	t.waiterMu.Lock()
	t.heartbeatWaiter = waiter
	t.waiterMu.Unlock()
	defer func() {
		t.waiterMu.Lock()
		t.heartbeatWaiter = nil
		t.waiterMu.Unlock()
	}()

	frame := knxnet.EncodeConnectionStateRequest(channel, t.localHPAI)
	if err := t.transport.Send(frame, t.gateway); err != nil {
		t.logWarn("send heartbeat failed", "error", err)
		return false
	}

	timer := time.NewTimer(t.cfg.HeartbeatTimeout)
	defer timer.Stop()

	select {
	case resp := <-waiter:
		if resp.Status != knxnet.StatusNoError {
			t.logWarn("heartbeat rejected", "status", resp.Status)
			return false
		}
		return true
	case <-timer.C:
		return false
	case <-stop.Done():
		return true
	case <-t.done.Done():
		return true
	}
}

// callbackWorker runs telegram callbacks off the dispatch path.
func (t *Tunnel) callbackWorker() {
	defer t.wg.Done()

	for {
		select {
		case <-t.done.Done():
			return
		case tel := <-t.callbackQueue:
			t.callbackMu.RLock()
			callback := t.onTelegram
			t.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							t.logError("telegram callback panic", fmt.Errorf("%v", r))
						}
					}()
					callback(tel)
				}()
			}
		}
	}
}

// stateNotifier delivers state-change events in order on a goroutine
// of their own, so a callback may reconnect without deadlocking the
// dispatch loop.
func (t *Tunnel) stateNotifier() {
	defer t.wg.Done()

	for {
		select {
		case <-t.done.Done():
			return
		case s := <-t.stateEvents:
			t.callbackMu.RLock()
			callback := t.onStateChange
			t.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							t.logError("state callback panic", fmt.Errorf("%v", r))
						}
					}()
					callback(s)
				}()
			}
		}
	}
}

func (t *Tunnel) logDebug(msg string, keysAndValues ...any) {
	if l := t.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (t *Tunnel) logInfo(msg string, keysAndValues ...any) {
	if l := t.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (t *Tunnel) logWarn(msg string, keysAndValues ...any) {
	if l := t.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (t *Tunnel) logError(msg string, err error) {
	if l := t.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}

func (t *Tunnel) getLogger() Logger {
	t.loggerMu.RLock()
	defer t.loggerMu.RUnlock()
	return t.logger
}

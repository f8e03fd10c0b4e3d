package rcon

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.fieldops.dev/squadctl/internal/events"
)

// State is one of the RCON session's lifecycle states (§4.3).
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateAuthenticating:
		return "Authenticating"
	case StateReady:
		return "Ready"
	case StateReconnecting:
		return "Reconnecting"
	default:
		return "Unknown"
	}
}

// Defaults per §5.
const (
	DefaultCommandTimeout  = 10 * time.Second
	DefaultQueueBound      = 256
	DefaultKeepAliveIdle   = 30 * time.Second
	maxConsecutiveTimeouts = 3
)

var reconnectBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second, // capped: every attempt beyond this also waits 30s
}

func backoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(reconnectBackoff) {
		return reconnectBackoff[len(reconnectBackoff)-1]
	}
	return reconnectBackoff[attempt]
}

// Config configures a Session.
type Config struct {
	Host     string
	Port     int
	Password string

	CommandTimeout time.Duration
	QueueBound     int
	KeepAliveIdle  time.Duration

	Publisher events.Publisher
}

func (c *Config) setDefaults() {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.QueueBound <= 0 {
		c.QueueBound = DefaultQueueBound
	}
	if c.KeepAliveIdle <= 0 {
		c.KeepAliveIdle = DefaultKeepAliveIdle
	}
}

type commandResult struct {
	value string
	err   error
}

type queuedCommand struct {
	cmd      string
	resultCh chan commandResult
}

type pendingCommand struct {
	id       int32
	resultCh chan commandResult
	body     strings.Builder
	timer    *time.Timer
}

// Session implements C3: the authenticated, auto-reconnecting RCON command
// and chat session built on top of a Transport (C2).
type Session struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	mu                   sync.Mutex
	state                State
	transport            *Transport
	nextID               int32
	inFlight             *pendingCommand
	queue                []*queuedCommand
	reconnectAttempt     int
	consecutiveTimeouts  int
	everAuthenticated    bool
	idleTimer            *time.Timer
	stopped              bool
	serverInfo           ServerInfo
}

// NewSession constructs a Session. Call Start to begin connecting.
func NewSession(cfg Config) *Session {
	cfg.setDefaults()
	return &Session{cfg: cfg, nextID: 2, state: StateDisconnected}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ServerInfo returns the most recently parsed ShowServerInfo snapshot,
// refreshed on every keep-alive ping. Zero value until the first one lands.
func (s *Session) ServerInfo() ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// Start begins the connect/authenticate/reconnect lifecycle. It returns
// immediately; connection progress is reported via published RCON_CONNECTED
// / RCON_DISCONNECTED / RCON_ERROR events.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.connect()
}

// Stop cancels the session, fails every outstanding and queued command with
// Cancelled, and tears down the transport. It gives in-flight work until
// drain elapses to settle before forcing the teardown.
func (s *Session) Stop(drain time.Duration) {
	deadline := time.Now().Add(drain)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		settled := s.stopped || (s.inFlight == nil && len(s.queue) == 0)
		s.mu.Unlock()
		if settled {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.state = StateDisconnected
	t := s.transport
	inFlight := s.inFlight
	s.inFlight = nil
	pending := s.queue
	s.queue = nil
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	if inFlight != nil {
		inFlight.timer.Stop()
		inFlight.resultCh <- commandResult{err: newError(KindCancelled, "session stopped")}
	}
	for _, qc := range pending {
		qc.resultCh <- commandResult{err: newError(KindCancelled, "session stopped")}
	}

	if t != nil {
		_ = t.Close()
	}
}

// Execute submits a command to the serial queue and blocks until it resolves,
// the queue is full, or ctx is done.
func (s *Session) Execute(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	if len(s.queue) >= s.cfg.QueueBound {
		s.mu.Unlock()
		return "", newError(KindQueueFull, fmt.Sprintf("queue bound %d reached", s.cfg.QueueBound))
	}
	qc := &queuedCommand{cmd: cmd, resultCh: make(chan commandResult, 1)}
	s.queue = append(s.queue, qc)
	s.mu.Unlock()

	s.maybeDispatchNext()

	select {
	case res := <-qc.resultCh:
		return res.value, res.err
	case <-ctx.Done():
		return "", newError(KindCancelled, "caller context done")
	}
}

func (s *Session) publish(kind events.Kind, raw string, data any) {
	if s.cfg.Publisher == nil {
		return
	}
	s.cfg.Publisher.Publish(events.New(kind, time.Now().UTC(), raw, data))
}

func (s *Session) connect() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.mu.Unlock()

	t := NewTransport(s.cfg.Host, s.cfg.Port, s.handlePacket, s.handleClosed)

	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()

	if err := t.Connect(s.ctx); err != nil {
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	s.state = StateAuthenticating
	s.mu.Unlock()

	frame, _ := Encode(1, PacketTypeAuth, s.cfg.Password)
	if err := t.SendPacket(frame); err != nil {
		s.scheduleReconnect()
	}
}

func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	attempt := s.reconnectAttempt
	s.reconnectAttempt++
	s.state = StateReconnecting
	s.mu.Unlock()

	delay := backoffDelay(attempt)
	go func() {
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		}
		s.connect()
	}()
}

func (s *Session) handleClosed(reason string) {
	s.mu.Lock()
	if s.stopped || s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	inFlight := s.inFlight
	s.inFlight = nil
	pending := s.queue
	s.queue = nil
	s.state = StateReconnecting
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.mu.Unlock()

	if inFlight != nil {
		inFlight.timer.Stop()
		inFlight.resultCh <- commandResult{err: newError(KindDisconnected, reason)}
	}
	for _, qc := range pending {
		qc.resultCh <- commandResult{err: newError(KindDisconnected, reason)}
	}

	s.publish(events.KindRconDisconnected, "", events.RconDisconnectedData{Reason: reason, WillReconnect: true})
	s.scheduleReconnect()
}

func (s *Session) handlePacket(pkt Packet) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateAuthenticating:
		s.handleAuthPacket(pkt)
	case StateReady:
		s.handleReadyPacket(pkt)
	default:
		// packets arriving outside Authenticating/Ready are stray; drop.
	}
}

func (s *Session) handleAuthPacket(pkt Packet) {
	if pkt.Type == PacketTypeResponseValue && pkt.ID == 1 {
		// optional empty pre-response; ignored per §4.3.
		return
	}
	if pkt.Type != PacketTypeExecOrAuthOK {
		return
	}
	if pkt.ID == -1 {
		s.authFailed()
		return
	}
	if pkt.ID == 1 {
		s.authSucceeded()
	}
}

func (s *Session) authSucceeded() {
	s.mu.Lock()
	reconnect := s.everAuthenticated
	s.everAuthenticated = true
	s.state = StateReady
	s.reconnectAttempt = 0
	s.consecutiveTimeouts = 0
	s.mu.Unlock()

	s.publish(events.KindRconConnected, "", events.RconConnectedData{Reconnect: reconnect})
	s.resetIdleTimer()
	s.maybeDispatchNext()
}

// authFailed handles the AUTH_RESPONSE(id=-1) case: the server rejected the
// password. There is no point retrying with the same credentials, but the
// session still goes through the normal reconnect supervisor rather than
// stopping outright, since an operator may fix the configured password and
// restart the process.
func (s *Session) authFailed() {
	s.publish(events.KindRconError, "", events.RconErrorData{Fatal: true, Reason: "auth failed"})
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t != nil {
		_ = t.Close()
	}
}

func (s *Session) handleReadyPacket(pkt Packet) {
	s.resetIdleTimer()

	switch pkt.Type {
	case PacketTypeChatValue:
		s.handleChat(pkt.Body)
	case PacketTypeResponseValue:
		s.handleResponseValue(pkt)
	default:
		// unexpected packet type while Ready; drop.
	}
}

func (s *Session) handleChat(body string) {
	line, ok := ParseChat(body)
	if !ok {
		return
	}
	if strings.HasPrefix(line.Message, "!") {
		command, args, _ := strings.Cut(line.Message[1:], " ")
		s.publish(events.KindChatCommand, body, events.ChatCommandData{
			ChatMessageData: events.ChatMessageData{
				ChatType: line.ChatType,
				EOSID:    line.EOSID,
				SteamID:  line.SteamID,
				Name:     line.Name,
				Message:  line.Message,
			},
			Command: command,
			Args:    args,
		})
		return
	}
	s.publish(events.KindChatMessage, body, events.ChatMessageData{
		ChatType: line.ChatType,
		EOSID:    line.EOSID,
		SteamID:  line.SteamID,
		Name:     line.Name,
		Message:  line.Message,
	})
}

// isEndOfResponse reports whether body is the empty-body sentinel, allowing
// for the game server's known trailing-garbage quirk (§4.3, §9): a body made
// up solely of NUL/0x01 bytes still counts as "empty" for this purpose.
func isEndOfResponse(body string) bool {
	return strings.TrimFunc(body, func(r rune) bool { return r == 0x00 || r == 0x01 }) == ""
}

func (s *Session) handleResponseValue(pkt Packet) {
	s.mu.Lock()
	pc := s.inFlight
	if pc == nil || pkt.ID != pc.id {
		s.mu.Unlock()
		return
	}

	if isEndOfResponse(pkt.Body) {
		s.inFlight = nil
		s.consecutiveTimeouts = 0
		s.mu.Unlock()

		pc.timer.Stop()
		pc.resultCh <- commandResult{value: pc.body.String()}
		s.maybeDispatchNext()
		return
	}

	pc.body.WriteString(pkt.Body)
	s.mu.Unlock()
}

func (s *Session) allocateID() int32 {
	id := s.nextID
	if s.nextID == 1<<31-1 {
		s.nextID = 2
	} else {
		s.nextID++
	}
	return id
}

func (s *Session) maybeDispatchNext() {
	s.mu.Lock()
	if s.state != StateReady || s.inFlight != nil || len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	qc := s.queue[0]
	s.queue = s.queue[1:]
	id := s.allocateID()
	pc := &pendingCommand{id: id, resultCh: qc.resultCh}
	pc.timer = time.AfterFunc(s.cfg.CommandTimeout, func() { s.handleCommandTimeout(id) })
	s.inFlight = pc
	t := s.transport
	s.mu.Unlock()

	execFrame, _ := Encode(id, PacketTypeExecOrAuthOK, qc.cmd)
	sentinelFrame, _ := Encode(id, PacketTypeResponseValue, "")

	if t == nil {
		s.failInFlight(id, newError(KindDisconnected, "no active transport"))
		return
	}
	if err := t.SendPacket(execFrame); err != nil {
		s.failInFlight(id, newError(KindDisconnected, err.Error()))
		return
	}
	if err := t.SendPacket(sentinelFrame); err != nil {
		s.failInFlight(id, newError(KindDisconnected, err.Error()))
		return
	}
}

func (s *Session) failInFlight(id int32, err error) {
	s.mu.Lock()
	pc := s.inFlight
	if pc == nil || pc.id != id {
		s.mu.Unlock()
		return
	}
	s.inFlight = nil
	s.mu.Unlock()

	pc.timer.Stop()
	pc.resultCh <- commandResult{err: err}
}

func (s *Session) handleCommandTimeout(id int32) {
	s.mu.Lock()
	pc := s.inFlight
	if pc == nil || pc.id != id {
		s.mu.Unlock()
		return
	}
	s.inFlight = nil
	s.consecutiveTimeouts++
	shouldReconnect := s.consecutiveTimeouts >= maxConsecutiveTimeouts
	t := s.transport
	s.mu.Unlock()

	pc.resultCh <- commandResult{err: newError(KindTimeout, "command timed out")}

	if shouldReconnect {
		if t != nil {
			_ = t.Close() // drives handleClosed -> reconnect supervisor
		}
		return
	}
	s.maybeDispatchNext()
}

func (s *Session) resetIdleTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idleTimer == nil {
		s.idleTimer = time.AfterFunc(s.cfg.KeepAliveIdle, s.sendKeepAlive)
		return
	}
	s.idleTimer.Reset(s.cfg.KeepAliveIdle)
}

func (s *Session) sendKeepAlive() {
	s.mu.Lock()
	ready := s.state == StateReady
	s.mu.Unlock()

	s.resetIdleTimer()

	if !ready {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CommandTimeout)
		defer cancel()
		body, err := s.Execute(ctx, "ShowServerInfo")
		if err != nil {
			return
		}
		info := ParseServerInfo(body)
		s.mu.Lock()
		s.serverInfo = info
		s.mu.Unlock()
	}()
}

package client

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/motorchat/internal/logger"
	"github.com/motorchat/internal/model"
)

// State is the session's connection state.
type State int

const (
	// StateIdle means no socket exists (missing conversation id or credential,
	// or the session was never configured).
	StateIdle State = iota
	// StateOpen means the socket is established and frames flow.
	StateOpen
	// StateClosed means the socket closed or errored and was not replaced.
	StateClosed
)

// Dispatcher receives the decoded inbound events. Implemented by
// ConversationStore; sessions never read store state back.
type Dispatcher interface {
	AppendMessage(m model.Message)
	MessagesRead(readerID int64)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// BaseURL is the WebSocket origin, e.g. "ws://localhost:8080".
	BaseURL string
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// OnConnectivity is invoked with true on every transition to Open and
	// false on every transition away from it. Optional.
	OnConnectivity func(connected bool)
	// MaxRetries enables reconnection after an unexpected drop: up to this
	// many redial attempts with capped exponential backoff. 0 disables
	// reconnection.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Session owns at most one live socket bound to (conversation id, credential).
// Reconfigure tears the previous socket down, and waits for its reader to
// exit, before dialing the next one, so frames from an old conversation can
// never land after a new one opened.
type Session struct {
	cfg      SessionConfig
	dispatch Dispatcher

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	convID int64
	cred   string
	// gen increments on every teardown; a reader or retry loop holding a
	// stale gen stands down silently.
	gen        uint64
	readerDone chan struct{}
}

// NewSession builds an Idle session. dispatch must not be nil.
func NewSession(cfg SessionConfig, dispatch Dispatcher) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	return &Session{cfg: cfg, dispatch: dispatch, state: StateIdle}
}

// Reconfigure rebinds the session to (conversationID, credential). The
// previous socket, if any, is closed first. With a zero id or empty credential
// the session stays Idle. A dial failure leaves the session Closed and is
// returned as an error; connectivity simply never reports true in that case.
func (s *Session) Reconfigure(conversationID int64, credential string) error {
	notifyClosed := s.teardown()
	if notifyClosed && s.cfg.OnConnectivity != nil {
		s.cfg.OnConnectivity(false)
	}

	s.mu.Lock()
	s.convID = conversationID
	s.cred = credential
	if conversationID == 0 || credential == "" {
		s.state = StateIdle
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	s.mu.Unlock()

	return s.dial(gen, conversationID, credential)
}

// Close tears the session down for good.
func (s *Session) Close() {
	notifyClosed := s.teardown()
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	if notifyClosed && s.cfg.OnConnectivity != nil {
		s.cfg.OnConnectivity(false)
	}
}

// Connected reports whether the state is Open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateOpen
}

// Send transmits a chat line. Returns true only when the session is Open and
// the frame went out; false means nothing happened and the caller should keep
// input disabled. Callers trim and reject empty text before calling.
func (s *Session) Send(text string) bool {
	frame, err := EncodeChatMessage(text)
	if err != nil {
		logger.Errorf("client: encode chat_message: %v", err)
		return false
	}
	return s.write(frame)
}

// MarkAsRead transmits the read-receipt frame when Open; otherwise it is a
// silent no-op. Fire and forget, no acknowledgement is awaited.
func (s *Session) MarkAsRead() {
	frame, err := EncodeMarkRead()
	if err != nil {
		logger.Errorf("client: encode mark_read: %v", err)
		return
	}
	s.write(frame)
}

func (s *Session) write(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen || s.conn == nil {
		return false
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		logger.Errorf("client: write frame: %v", err)
		return false
	}
	return true
}

// teardown closes the current socket and waits for its reader to exit.
// Returns whether the session was Open (the caller emits the false
// connectivity notification).
func (s *Session) teardown() (wasOpen bool) {
	s.mu.Lock()
	s.gen++
	wasOpen = s.state == StateOpen
	conn := s.conn
	done := s.readerDone
	s.conn = nil
	s.readerDone = nil
	s.state = StateIdle
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
	return wasOpen
}

func (s *Session) endpoint(conversationID int64, credential string) string {
	return fmt.Sprintf("%s/ws/chat/%d?token=%s",
		strings.TrimSuffix(s.cfg.BaseURL, "/"), conversationID, url.QueryEscape(credential))
}

func (s *Session) dial(gen uint64, conversationID int64, credential string) error {
	conn, _, err := s.cfg.Dialer.Dial(s.endpoint(conversationID, credential), nil)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.state = StateClosed
		}
		s.mu.Unlock()
		return fmt.Errorf("client: dial conversation %d: %w", conversationID, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		// Torn down while dialing; this socket lost the race.
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	s.conn = conn
	s.state = StateOpen
	done := make(chan struct{})
	s.readerDone = done
	notify := s.cfg.OnConnectivity
	s.mu.Unlock()

	go s.readLoop(conn, gen, done)
	if notify != nil {
		notify(true)
	}
	return nil
}

// readLoop delivers inbound frames in receive order. A malformed frame is
// logged and dropped; only a transport error ends the loop.
func (s *Session) readLoop(conn *websocket.Conn, gen uint64, done chan struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.onReaderExit(gen, err)
			return
		}
		if !s.currentGen(gen) {
			return
		}
		ev, err := Decode(raw)
		if err != nil {
			logger.Errorf("client: %v", err)
			continue
		}
		switch e := ev.(type) {
		case MessageEvent:
			s.dispatch.AppendMessage(e.Message)
		case ReadEvent:
			s.dispatch.MessagesRead(e.UserID)
		default:
			// Unknown frame type: forward-compatible no-op.
		}
	}
}

func (s *Session) currentGen(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// onReaderExit handles an unexpected transport close. A reader whose gen is
// stale was torn down deliberately and stays quiet.
func (s *Session) onReaderExit(gen uint64, cause error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.conn = nil
	s.readerDone = nil
	convID, cred := s.convID, s.cred
	notify := s.cfg.OnConnectivity
	retries := s.cfg.MaxRetries
	s.mu.Unlock()

	logger.Infof("client: conversation %d socket closed: %v", convID, cause)
	if notify != nil {
		notify(false)
	}
	if retries > 0 {
		go s.retryLoop(gen, convID, cred)
	}
}

// retryLoop redials with capped exponential backoff until it succeeds, runs
// out of attempts, or the session is reconfigured (gen moves on).
func (s *Session) retryLoop(gen uint64, conversationID int64, credential string) {
	delay := s.cfg.RetryBaseDelay
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		time.Sleep(delay)
		if !s.currentGen(gen) {
			return
		}
		if err := s.dial(gen, conversationID, credential); err == nil {
			return
		}
		logger.Infof("client: reconnect attempt %d/%d for conversation %d failed", attempt, s.cfg.MaxRetries, conversationID)
		delay *= 2
		if delay > s.cfg.RetryMaxDelay {
			delay = s.cfg.RetryMaxDelay
		}
	}
}

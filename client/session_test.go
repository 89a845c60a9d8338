package client

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// chatServer is a minimal WebSocket peer for session tests: it accepts
// /ws/chat/{id}?token=... connections, records every inbound frame per
// conversation and lets tests push outbound frames.
type chatServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	frames map[int64][]string
	conns  map[int64][]*websocket.Conn
	events []string // "open 42", "close 42", ... in server observation order
}

func newChatServer(t *testing.T) *chatServer {
	s := &chatServer{
		t:      t,
		frames: make(map[int64][]string),
		conns:  make(map[int64][]*websocket.Conn),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

// wsURL converts the httptest origin to a ws:// one.
func (s *chatServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *chatServer) handle(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/ws/chat/")
	convID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("token") == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[convID] = append(s.conns[convID], conn)
	s.events = append(s.events, "open "+idStr)
	s.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.events = append(s.events, "close "+idStr)
			s.mu.Unlock()
			return
		}
		s.mu.Lock()
		s.frames[convID] = append(s.frames[convID], string(raw))
		s.mu.Unlock()
	}
}

func (s *chatServer) framesFor(convID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames[convID]...)
}

func (s *chatServer) eventLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// push writes a frame to the most recent connection of the conversation.
func (s *chatServer) push(convID int64, frame string) {
	s.mu.Lock()
	conns := s.conns[convID]
	s.mu.Unlock()
	if len(conns) == 0 {
		s.t.Fatalf("no connection for conversation %d", convID)
	}
	conn := conns[len(conns)-1]
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		s.t.Fatalf("server push: %v", err)
	}
}

// closeLatest drops the most recent connection of the conversation.
func (s *chatServer) closeLatest(convID int64) {
	s.mu.Lock()
	conns := s.conns[convID]
	s.mu.Unlock()
	if len(conns) == 0 {
		s.t.Fatalf("no connection for conversation %d", convID)
	}
	conns[len(conns)-1].Close()
}

// connRecorder collects connectivity notifications in order.
type connRecorder struct {
	mu  sync.Mutex
	seq []bool
	ch  chan bool
}

func newConnRecorder() *connRecorder {
	return &connRecorder{ch: make(chan bool, 16)}
}

func (r *connRecorder) callback(connected bool) {
	r.mu.Lock()
	r.seq = append(r.seq, connected)
	r.mu.Unlock()
	r.ch <- connected
}

func (r *connRecorder) sequence() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.seq...)
}

func (r *connRecorder) next(t *testing.T) bool {
	t.Helper()
	select {
	case v := <-r.ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("no connectivity notification within 3s")
		return false
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSendReturnsFalseUnlessOpen(t *testing.T) {
	server := newChatServer(t)
	store := NewConversationStore()
	rec := newConnRecorder()
	sess := NewSession(SessionConfig{BaseURL: server.wsURL(), OnConnectivity: rec.callback}, store)

	if sess.Send("too early") {
		t.Fatalf("Send must fail while Idle")
	}
	sess.MarkAsRead() // no-op, no panic

	if err := sess.Reconfigure(42, "tok123"); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	if got := rec.next(t); !got {
		t.Fatalf("first notification = %v, want true", got)
	}
	if !sess.Send("hello") {
		t.Fatalf("Send must succeed while Open")
	}

	sess.Close()
	if got := rec.next(t); got {
		t.Fatalf("close notification = %v, want false", got)
	}
	if sess.Send("too late") {
		t.Fatalf("Send must fail after Close")
	}
	sess.MarkAsRead() // still a no-op

	eventually(t, "exactly one transmitted frame", func() bool {
		return len(server.framesFor(42)) == 1
	})
	if frames := server.framesFor(42); frames[0] != `{"type":"chat_message","message":"hello"}` {
		t.Fatalf("frame = %s", frames[0])
	}
}

func TestMarkAsReadFrame(t *testing.T) {
	server := newChatServer(t)
	sess := NewSession(SessionConfig{BaseURL: server.wsURL()}, NewConversationStore())
	defer sess.Close()

	if err := sess.Reconfigure(42, "tok123"); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	sess.MarkAsRead()
	eventually(t, "mark_read frame", func() bool {
		return len(server.framesFor(42)) == 1
	})
	if frames := server.framesFor(42); frames[0] != `{"type":"mark_read"}` {
		t.Fatalf("frame = %s", frames[0])
	}
}

func TestInboundMessageReachesStore(t *testing.T) {
	server := newChatServer(t)
	store := NewConversationStore()
	rec := newConnRecorder()
	sess := NewSession(SessionConfig{BaseURL: server.wsURL(), OnConnectivity: rec.callback}, store)
	defer sess.Close()

	openConv(store, 42)
	if err := sess.Reconfigure(42, "tok123"); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	rec.next(t)

	server.push(42, `{"type":"chat_message","message":{"id":1,"content":"hi back",`+
		`"is_read":false,"created_at":"2025-01-01T00:00:00Z","sender":{"id":2,"email":"b@x.io","first_name":"B","last_name":"S"}}}`)
	eventually(t, "store to gain the message", func() bool {
		return len(store.Messages()) == 1
	})
	got := store.Messages()[0]
	if got.ID != 1 || got.Content != "hi back" || got.Sender.ID != 2 {
		t.Fatalf("stored message: %+v", got)
	}
}

func TestMalformedInboundFrameIsDropped(t *testing.T) {
	server := newChatServer(t)
	store := NewConversationStore()
	sess := NewSession(SessionConfig{BaseURL: server.wsURL()}, store)
	defer sess.Close()

	openConv(store, 42)
	if err := sess.Reconfigure(42, "tok123"); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}

	server.push(42, `this is not json`)
	server.push(42, `{"type":"made_up_frame"}`)
	server.push(42, `{"type":"chat_message","message":{"id":3,"content":"survivor","sender":{"id":2}}}`)
	eventually(t, "the valid frame to land", func() bool {
		return len(store.Messages()) == 1
	})
	if store.Messages()[0].ID != 3 {
		t.Fatalf("stored message: %+v", store.Messages()[0])
	}
	if !sess.Connected() {
		t.Fatalf("malformed frames must not tear down the session")
	}
}

func TestReconfigureClosesOldSocketFirst(t *testing.T) {
	server := newChatServer(t)
	store := NewConversationStore()
	rec := newConnRecorder()
	sess := NewSession(SessionConfig{BaseURL: server.wsURL(), OnConnectivity: rec.callback}, store)
	defer sess.Close()

	openConv(store, 42)
	if err := sess.Reconfigure(42, "tok123"); err != nil {
		t.Fatalf("open 42: %v", err)
	}
	rec.next(t)

	openConv(store, 43)
	if err := sess.Reconfigure(43, "tok123"); err != nil {
		t.Fatalf("open 43: %v", err)
	}

	// open-42, close-42, open-43: the old socket dies before the new dial.
	want := []bool{true, false, true}
	eventually(t, "the true,false,true connectivity sequence", func() bool {
		seq := rec.sequence()
		if len(seq) != len(want) {
			return false
		}
		for i := range want {
			if seq[i] != want[i] {
				return false
			}
		}
		return true
	})

	eventually(t, "the server to log open 42, close 42 and open 43", func() bool {
		seen := make(map[string]int)
		for _, e := range server.eventLog() {
			seen[e]++
		}
		return seen["open 42"] == 1 && seen["close 42"] == 1 && seen["open 43"] == 1
	})

	// Frames now land in 43's slot only.
	server.push(43, `{"type":"chat_message","message":{"id":10,"content":"for 43","sender":{"id":2}}}`)
	eventually(t, "43's message to arrive", func() bool {
		return len(store.Messages()) == 1
	})
	if store.OpenID() != 43 || store.Messages()[0].Content != "for 43" {
		t.Fatalf("open=%d messages=%+v", store.OpenID(), store.Messages())
	}
}

func TestMissingCredentialStaysIdle(t *testing.T) {
	server := newChatServer(t)
	rec := newConnRecorder()
	sess := NewSession(SessionConfig{BaseURL: server.wsURL(), OnConnectivity: rec.callback}, NewConversationStore())
	defer sess.Close()

	if err := sess.Reconfigure(42, ""); err != nil {
		t.Fatalf("reconfigure without credential: %v", err)
	}
	if err := sess.Reconfigure(0, "tok123"); err != nil {
		t.Fatalf("reconfigure without conversation: %v", err)
	}
	if sess.Connected() {
		t.Fatalf("session must stay Idle without both values")
	}
	if len(rec.sequence()) != 0 {
		t.Fatalf("no connectivity notifications expected, got %v", rec.sequence())
	}
	if len(server.eventLog()) != 0 {
		t.Fatalf("no connection expected, server saw %v", server.eventLog())
	}
}

func TestDialFailureReportsErrorNotPanic(t *testing.T) {
	rec := newConnRecorder()
	sess := NewSession(SessionConfig{BaseURL: "ws://127.0.0.1:1", OnConnectivity: rec.callback}, NewConversationStore())
	if err := sess.Reconfigure(42, "tok123"); err == nil {
		t.Fatalf("expected a dial error")
	}
	if sess.Connected() {
		t.Fatalf("failed dial must not report Open")
	}
	if len(rec.sequence()) != 0 {
		t.Fatalf("failed dial must not notify connectivity, got %v", rec.sequence())
	}
}

func TestServerDropNotifiesAndDisablesSend(t *testing.T) {
	server := newChatServer(t)
	rec := newConnRecorder()
	sess := NewSession(SessionConfig{BaseURL: server.wsURL(), OnConnectivity: rec.callback}, NewConversationStore())
	defer sess.Close()

	if err := sess.Reconfigure(42, "tok123"); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	rec.next(t)

	server.closeLatest(42)
	if got := rec.next(t); got {
		t.Fatalf("drop notification = %v, want false", got)
	}
	if sess.Send("into the void") {
		t.Fatalf("Send must fail after the transport dropped")
	}
}

func TestReconnectWithBackoff(t *testing.T) {
	server := newChatServer(t)
	rec := newConnRecorder()
	sess := NewSession(SessionConfig{
		BaseURL:        server.wsURL(),
		OnConnectivity: rec.callback,
		MaxRetries:     3,
		RetryBaseDelay: 10 * time.Millisecond,
	}, NewConversationStore())
	defer sess.Close()

	if err := sess.Reconfigure(42, "tok123"); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	rec.next(t)

	server.closeLatest(42)
	if got := rec.next(t); got {
		t.Fatalf("drop notification = %v, want false", got)
	}
	if got := rec.next(t); !got {
		t.Fatalf("reconnect notification = %v, want true", got)
	}
	eventually(t, "a second server-side connection", func() bool {
		log := server.eventLog()
		opens := 0
		for _, e := range log {
			if e == "open 42" {
				opens++
			}
		}
		return opens == 2
	})
	if !sess.Send("after reconnect") {
		t.Fatalf("Send must work on the replacement socket")
	}
}

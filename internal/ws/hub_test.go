package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/motorchat/internal/model"
)

type fakeConvRepo struct {
	conv    model.Conversation
	touched int
}

func (f *fakeConvRepo) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	if id != f.conv.ID {
		return nil, errors.New("not found")
	}
	c := f.conv
	return &c, nil
}

func (f *fakeConvRepo) IsParticipant(ctx context.Context, convID, userID int64) (bool, error) {
	return userID == f.conv.BuyerID || userID == f.conv.SellerID, nil
}

func (f *fakeConvRepo) Touch(ctx context.Context, convID int64, t time.Time) error {
	f.touched++
	return nil
}

type fakeMsgRepo struct {
	created    []model.Message
	failCreate bool
	markReads  [][2]int64 // conv id, reader id
}

func (f *fakeMsgRepo) Create(ctx context.Context, m *model.Message) error {
	if f.failCreate {
		return errors.New("db down")
	}
	m.ID = int64(len(f.created) + 1)
	m.CreatedAt = time.Now().UTC()
	f.created = append(f.created, *m)
	return nil
}

func (f *fakeMsgRepo) MarkRead(ctx context.Context, convID, readerID int64) error {
	f.markReads = append(f.markReads, [2]int64{convID, readerID})
	return nil
}

type fakeUserRepo struct{}

func (fakeUserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return &model.User{ID: id, Email: "u@x.io", FirstName: "User"}, nil
}

type pushCall struct {
	userID int64
	title  string
	body   string
}

type fakePush struct {
	calls chan pushCall
}

func newFakePush() *fakePush { return &fakePush{calls: make(chan pushCall, 8)} }

func (f *fakePush) Notify(ctx context.Context, userID int64, title, body string, data map[string]string) {
	f.calls <- pushCall{userID: userID, title: title, body: body}
}

// testHub wires a hub to fakes around conversation 1 (buyer 10, seller 20).
func testHub(push PushNotifier) (*Hub, *fakeConvRepo, *fakeMsgRepo) {
	convRepo := &fakeConvRepo{conv: model.Conversation{ID: 1, ListingID: 5, BuyerID: 10, SellerID: 20}}
	msgRepo := &fakeMsgRepo{}
	return NewHub(convRepo, msgRepo, fakeUserRepo{}, 100, push), convRepo, msgRepo
}

// joinRoom registers the client directly (the pumps are not running in these
// tests; frames are read straight from the send channel).
func joinRoom(t *testing.T, h *Hub, convID, userID int64) *Client {
	t.Helper()
	c := NewClient(h, nil, convID, userID)
	h.addClient(c)
	// Drain the connection_established greeting.
	select {
	case f := <-c.send:
		if f.Type != FrameConnectionEstablished {
			t.Fatalf("greeting = %v", f.Type)
		}
	default:
		t.Fatalf("no greeting frame on join")
	}
	return c
}

func nextFrame(t *testing.T, c *Client) OutboundFrame {
	t.Helper()
	select {
	case f := <-c.send:
		return f
	case <-time.After(time.Second):
		t.Fatalf("no frame for conv=%d user=%d", c.conversationID, c.userID)
		return OutboundFrame{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case f := <-c.send:
		t.Fatalf("unexpected frame %v for conv=%d user=%d", f.Type, c.conversationID, c.userID)
	default:
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	h, _, msgRepo := testHub(nil)
	c := joinRoom(t, h, 1, 10)

	h.HandleFrame(context.Background(), c, InboundFrame{Type: FrameChatMessage, Message: "   \n\t "})
	f := nextFrame(t, c)
	if f.Type != FrameError {
		t.Fatalf("frame = %v, want error", f.Type)
	}
	if len(msgRepo.created) != 0 {
		t.Fatalf("whitespace message must not be stored")
	}
}

func TestChatMessageStoredAndBroadcast(t *testing.T) {
	h, convRepo, msgRepo := testHub(nil)
	buyer := joinRoom(t, h, 1, 10)
	seller := joinRoom(t, h, 1, 20)

	h.HandleFrame(context.Background(), buyer, InboundFrame{Type: FrameChatMessage, Message: "  hello  "})

	if len(msgRepo.created) != 1 || msgRepo.created[0].Content != "hello" {
		t.Fatalf("stored: %+v", msgRepo.created)
	}
	if convRepo.touched != 1 {
		t.Fatalf("touch count = %d", convRepo.touched)
	}
	for _, c := range []*Client{buyer, seller} {
		f := nextFrame(t, c)
		if f.Type != FrameChatMessage {
			t.Fatalf("frame = %v", f.Type)
		}
		m, ok := f.Message.(*model.Message)
		if !ok {
			t.Fatalf("payload type %T", f.Message)
		}
		if m.Content != "hello" || m.Sender.ID != 10 {
			t.Fatalf("payload: %+v", m)
		}
	}
}

func TestChatMessagePersistFailure(t *testing.T) {
	h, _, msgRepo := testHub(nil)
	msgRepo.failCreate = true
	buyer := joinRoom(t, h, 1, 10)
	seller := joinRoom(t, h, 1, 20)

	h.HandleFrame(context.Background(), buyer, InboundFrame{Type: FrameChatMessage, Message: "hello"})
	if f := nextFrame(t, buyer); f.Type != FrameError {
		t.Fatalf("sender frame = %v, want error", f.Type)
	}
	assertNoFrame(t, seller)
}

func TestRoomIsolation(t *testing.T) {
	h, _, _ := testHub(nil)
	inRoom := joinRoom(t, h, 1, 10)
	otherRoom := joinRoom(t, h, 2, 10)

	h.BroadcastToConversation(1, OutboundFrame{Type: FrameMessagesRead, UserID: 10})
	if f := nextFrame(t, inRoom); f.Type != FrameMessagesRead {
		t.Fatalf("frame = %v", f.Type)
	}
	assertNoFrame(t, otherRoom)
}

func TestMarkReadBroadcast(t *testing.T) {
	h, _, msgRepo := testHub(nil)
	buyer := joinRoom(t, h, 1, 10)
	seller := joinRoom(t, h, 1, 20)

	h.HandleFrame(context.Background(), buyer, InboundFrame{Type: FrameMarkRead})
	if len(msgRepo.markReads) != 1 || msgRepo.markReads[0] != [2]int64{1, 10} {
		t.Fatalf("mark read calls: %v", msgRepo.markReads)
	}
	for _, c := range []*Client{buyer, seller} {
		f := nextFrame(t, c)
		if f.Type != FrameMessagesRead || f.UserID != 10 {
			t.Fatalf("frame: %+v", f)
		}
	}
}

func TestUnknownFrameAnsweredWithError(t *testing.T) {
	h, _, _ := testHub(nil)
	c := joinRoom(t, h, 1, 10)
	h.HandleFrame(context.Background(), c, InboundFrame{Type: "definitely_not_a_frame"})
	if f := nextFrame(t, c); f.Type != FrameError {
		t.Fatalf("frame = %v, want error", f.Type)
	}
}

func TestPushSentToAbsentPeerOnly(t *testing.T) {
	push := newFakePush()
	h, _, _ := testHub(push)
	buyer := joinRoom(t, h, 1, 10)

	// Seller is not in the room: they get a notification.
	h.HandleFrame(context.Background(), buyer, InboundFrame{Type: FrameChatMessage, Message: "ping"})
	select {
	case call := <-push.calls:
		if call.userID != 20 || call.body != "ping" {
			t.Fatalf("push call: %+v", call)
		}
	case <-time.After(time.Second):
		t.Fatalf("no push for the absent seller")
	}

	// Seller joins; the next message must not push.
	joinRoom(t, h, 1, 20)
	h.HandleFrame(context.Background(), buyer, InboundFrame{Type: FrameChatMessage, Message: "pong"})
	select {
	case call := <-push.calls:
		t.Fatalf("unexpected push while the peer is in the room: %+v", call)
	case <-time.After(100 * time.Millisecond):
	}
}

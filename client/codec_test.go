package client

import (
	"testing"
	"time"
)

func TestEncodeChatMessageWireShape(t *testing.T) {
	frame, err := EncodeChatMessage("hello")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"type":"chat_message","message":"hello"}`
	if string(frame) != want {
		t.Fatalf("frame = %s, want %s", frame, want)
	}
}

func TestEncodeMarkReadWireShape(t *testing.T) {
	frame, err := EncodeMarkRead()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"type":"mark_read"}`
	if string(frame) != want {
		t.Fatalf("frame = %s, want %s", frame, want)
	}
}

func TestDecodeChatMessage(t *testing.T) {
	raw := []byte(`{"type":"chat_message","message":{"id":7,"content":"hi back","is_read":false,` +
		`"created_at":"2025-01-01T00:00:00Z","sender":{"id":2,"email":"b@x.io","first_name":"B","last_name":"Seller"}}}`)
	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	me, ok := ev.(MessageEvent)
	if !ok {
		t.Fatalf("event type = %T, want MessageEvent", ev)
	}
	if me.Message.ID != 7 || me.Message.Content != "hi back" || me.Message.Sender.ID != 2 {
		t.Fatalf("unexpected message: %+v", me.Message)
	}
	wantTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !me.Message.CreatedAt.Equal(wantTime) {
		t.Fatalf("created_at = %v, want %v", me.Message.CreatedAt, wantTime)
	}
}

func TestDecodeMessagesRead(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"messages_read","user_id":5}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	re, ok := ev.(ReadEvent)
	if !ok {
		t.Fatalf("event type = %T, want ReadEvent", ev)
	}
	if re.UserID != 5 {
		t.Fatalf("user id = %d, want 5", re.UserID)
	}
}

func TestDecodeUnknownTypeIsNoOp(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"typing_indicator","message":"..."}`))
	if err != nil {
		t.Fatalf("unknown type must not error: %v", err)
	}
	ue, ok := ev.(UnknownEvent)
	if !ok {
		t.Fatalf("event type = %T, want UnknownEvent", ev)
	}
	if ue.Type != "typing_indicator" {
		t.Fatalf("type = %q", ue.Type)
	}
}

func TestDecodeMalformedFrames(t *testing.T) {
	cases := []string{
		`not json at all`,
		`{"type":"chat_message","message":"a plain string, not an object"}`,
		`[1,2,3]`,
		``,
	}
	for _, raw := range cases {
		if _, err := Decode([]byte(raw)); err == nil {
			t.Errorf("Decode(%q) expected an error", raw)
		}
	}
}

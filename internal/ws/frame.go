package ws

// FrameType discriminates the JSON frames exchanged over a conversation
// socket. One frame per WebSocket text message.
type FrameType string

const (
	// Client -> server.
	FrameChatMessage FrameType = "chat_message"
	FrameMarkRead    FrameType = "mark_read"

	// Server -> client.
	FrameMessagesRead          FrameType = "messages_read"
	FrameConnectionEstablished FrameType = "connection_established"
	FrameError                 FrameType = "error"
	// chat_message is also server -> client, carrying the stored message.
)

// InboundFrame is what a client sends to the server.
type InboundFrame struct {
	Type    FrameType `json:"type"`
	Message string    `json:"message,omitempty"`
}

// OutboundFrame is what the server sends to clients. Message holds either the
// stored model.Message (chat_message) or an informational string
// (connection_established, error).
type OutboundFrame struct {
	Type    FrameType `json:"type"`
	Message any       `json:"message,omitempty"`
	UserID  int64     `json:"user_id,omitempty"`
}

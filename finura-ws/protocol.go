package finuraws

import (
	"encoding/json"
	"fmt"

	finuraauth "github.com/finura-app/finura-go-presence/finura-auth"
)

// Message types of the finura presence protocol.
const (
	MsgAuthorization        = "AUTHORIZATION"
	MsgAuthorizationSuccess = "AUTHORIZATION_SUCCESS"
	MsgError                = "ERROR"
	MsgNotification         = "NOTIFICATION"
	MsgMail                 = "MAIL"
)

// Close codes sent when the server ends a connection.
const (
	CloseSuperseded         = 4001
	CloseProtocolError      = 4002
	CloseInvalidCredentials = 4003
	CloseAuthTimeout        = 4008
)

// Message is a frame of the presence protocol, in either direction.
type Message struct {
	Type     string                 `json:"type"`
	Token    string                 `json:"token,omitempty"`
	User     *finuraauth.UserRecord `json:"user,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Sender   string                 `json:"sender,omitempty"`
	SenderID string                 `json:"sender_id,omitempty"`
}

// ParseMessage parses a protocol message from raw JSON.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("missing message type")
	}
	return &msg, nil
}

func mustMarshal(msg Message) []byte {
	b, _ := json.Marshal(msg)
	return b
}

// AuthorizationMessage is what a client sends to authenticate.
func AuthorizationMessage(token string) []byte {
	return mustMarshal(Message{Type: MsgAuthorization, Token: token})
}

// AuthorizationSuccessMessage acknowledges a handshake and echoes the user
// record the session authority returned.
func AuthorizationSuccessMessage(user finuraauth.UserRecord) []byte {
	return mustMarshal(Message{Type: MsgAuthorizationSuccess, User: &user})
}

// ErrorMessage reports a failure to the client. It is usually followed by a
// close frame.
func ErrorMessage(message string) []byte {
	return mustMarshal(Message{Type: MsgError, Message: message})
}

// NotificationMessage is a plain notification shown to the user.
func NotificationMessage(message, sender string) []byte {
	return mustMarshal(Message{Type: MsgNotification, Message: message, Sender: sender})
}

// MailMessage announces new mail from senderID.
func MailMessage(message, sender, senderID string) []byte {
	return mustMarshal(Message{Type: MsgMail, Message: message, Sender: sender, SenderID: senderID})
}

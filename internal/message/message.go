// Package message defines the native wire schema shared by both gateway
// directions: the inbound Message posted to /PostMessage and the Response
// every handler path converges on.
package message

import (
	"fmt"
	"net/http"
	"strings"
)

// MaxFieldLen bounds the identifying fields of a Message.
const MaxFieldLen = 64

// Message is the native on-the-wire message schema. Property names are
// matched case-insensitively on decode; empty optional fields are omitted
// on encode.
type Message struct {
	GatewayID   string `json:"gatewayId,omitempty"`
	GroupID     string `json:"groupId"`
	UserName    string `json:"userName"`
	Tag         string `json:"tag,omitempty"`
	MsgID       string `json:"msgId,omitempty"`
	ParentMsgID string `json:"parentMsgId,omitempty"`
	Text        string `json:"text"`
}

// Validate checks the schema invariants. requireGateway is set on the
// remote-originated inbound leg, where gatewayId selects the route.
func (m Message) Validate(requireGateway bool) error {
	if strings.TrimSpace(m.GroupID) == "" {
		return fmt.Errorf("groupId is required")
	}
	if len(m.GroupID) > MaxFieldLen {
		return fmt.Errorf("groupId exceeds %d characters", MaxFieldLen)
	}
	if strings.TrimSpace(m.UserName) == "" {
		return fmt.Errorf("userName is required")
	}
	if len(m.UserName) > MaxFieldLen {
		return fmt.Errorf("userName exceeds %d characters", MaxFieldLen)
	}
	if requireGateway && strings.TrimSpace(m.GatewayID) == "" {
		return fmt.Errorf("gatewayId is required")
	}
	if len(m.GatewayID) > MaxFieldLen {
		return fmt.Errorf("gatewayId exceeds %d characters", MaxFieldLen)
	}
	if m.Text == "" {
		return fmt.Errorf("text is required")
	}
	return nil
}

// Response is the native response schema. Status doubles as the HTTP
// status of the reply; Content carries the msgId on success and the
// failure reason otherwise.
type Response struct {
	Status  int    `json:"status"`
	Content string `json:"content,omitempty"`
}

// OK builds a success response.
func OK(content string) Response {
	return Response{Status: http.StatusOK, Content: content}
}

// Fail builds a failure response with the given status and reason.
func Fail(status int, reason string) Response {
	return Response{Status: status, Content: reason}
}

// IsOK reports whether the response carries a success status.
func (r Response) IsOK() bool {
	return r.Status >= 200 && r.Status < 300
}

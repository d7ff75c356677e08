package client

import (
	"context"
	"net/http"
	"strconv"

	"github.com/impbridge/impbridge/internal/message"
	"github.com/impbridge/impbridge/internal/profile"
)

// stub is the loopback adapter used in integration setups. It performs no
// network I/O; the outcome is forced by the STATUS credential, or derived
// from the message text when it parses as an HTTP status code, and is a
// plain success otherwise.
type stub struct {
	prof   profile.Client
	ep     *endpoint
	forced int
}

func newStub(p profile.Client, ep *endpoint) *stub {
	forced := 0
	if s, ok := p.SecretMap()["STATUS"]; ok {
		if n, err := strconv.Atoi(s); err == nil && n >= 100 && n < 600 {
			forced = n
		}
	}
	return &stub{prof: p, ep: ep, forced: forced}
}

func (c *stub) ID() string               { return c.prof.ID }
func (c *stub) Kind() profile.ClientKind { return profile.KindStub }
func (c *stub) Close()                   { c.ep.close() }

func (c *stub) Send(ctx context.Context, msg message.Message) message.Response {
	prepared := prepare(c.prof, msg)

	status := c.forced
	if status == 0 {
		if n, err := strconv.Atoi(prepared.Text); err == nil && n >= 100 && n < 600 {
			status = n
		} else {
			status = http.StatusOK
		}
	}

	if status >= 200 && status < 300 {
		id := prepared.MsgID
		if id == "" {
			id = message.NewMsgID()
		}
		return message.Response{Status: status, Content: id}
	}
	return message.Fail(status, "stub forced failure "+strconv.Itoa(status))
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/impbridge/impbridge/internal/auth"
	"github.com/impbridge/impbridge/internal/message"
	"github.com/impbridge/impbridge/internal/profile"
)

// impV1 forwards messages to a peer bridge over the native protocol,
// signing each request with the shared secret from the SECRET credential.
type impV1 struct {
	prof profile.Client
	ep   *endpoint
	auth *auth.Authenticator
}

func newImpV1(p profile.Client, ep *endpoint) *impV1 {
	return &impV1{
		prof: p,
		ep:   ep,
		auth: auth.New(p.SecretMap()["SECRET"], 0),
	}
}

func (c *impV1) ID() string               { return c.prof.ID }
func (c *impV1) Kind() profile.ClientKind { return profile.KindImpV1 }
func (c *impV1) Close()                   { c.ep.close() }

func (c *impV1) Send(ctx context.Context, msg message.Message) message.Response {
	body, err := json.Marshal(prepare(c.prof, msg))
	if err != nil {
		return message.Fail(http.StatusInternalServerError, "encoding message: "+err.Error())
	}

	req, err := c.ep.post(ctx, "PostMessage", "application/json", body)
	if err != nil {
		return message.Fail(http.StatusInternalServerError, "building request: "+err.Error())
	}
	if err := c.auth.Apply(req.Header, body); err != nil {
		return message.Fail(http.StatusInternalServerError, "signing request: "+err.Error())
	}

	res, failure, ok := c.ep.do(req)
	if !ok {
		return failure
	}

	var native message.Response
	if err := json.Unmarshal(res.body, &native); err != nil {
		return message.Fail(http.StatusInternalServerError,
			fmt.Sprintf("peer returned %d with unparseable body", res.status))
	}
	// The peer states its status both on the transport and in the body;
	// a disagreement means something between us rewrote the reply.
	if native.Status != res.status {
		return message.Fail(http.StatusInternalServerError,
			fmt.Sprintf("peer status mismatch: body says %d, transport says %d", native.Status, res.status))
	}
	return native
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/impbridge/impbridge/internal/message"
	"github.com/impbridge/impbridge/internal/profile"
)

// facebook publishes messages to a page feed through the Graph API,
// authenticating with the ACCESS_TOKEN credential.
type facebook struct {
	prof  profile.Client
	ep    *endpoint
	token string
}

func newFacebook(p profile.Client, ep *endpoint) *facebook {
	return &facebook{
		prof:  p,
		ep:    ep,
		token: p.SecretMap()["ACCESS_TOKEN"],
	}
}

func (c *facebook) ID() string               { return c.prof.ID }
func (c *facebook) Kind() profile.ClientKind { return profile.KindFacebook }
func (c *facebook) Close()                   { c.ep.close() }

type feedResponse struct {
	ID    string `json:"id"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *facebook) Send(ctx context.Context, msg message.Message) message.Response {
	prepared := prepare(c.prof, msg)
	form := url.Values{}
	form.Set("message", prepared.Text)
	form.Set("access_token", c.token)

	req, err := c.ep.postForm(ctx, "feed", form)
	if err != nil {
		return message.Fail(http.StatusInternalServerError, "building request: "+err.Error())
	}

	res, failure, ok := c.ep.do(req)
	if !ok {
		return failure
	}

	var decoded feedResponse
	_ = json.Unmarshal(res.body, &decoded)

	if res.status == http.StatusOK && decoded.ID != "" {
		return message.OK(decoded.ID)
	}
	reason := decoded.Error.Message
	if reason == "" {
		reason = fmt.Sprintf("feed post rejected with status %d", res.status)
	}
	if res.status == http.StatusOK {
		// 200 without a post id still counts as a failure.
		return message.Fail(http.StatusInternalServerError, reason)
	}
	return message.Fail(res.status, reason)
}

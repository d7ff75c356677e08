package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/impbridge/impbridge/internal/message"
	"github.com/impbridge/impbridge/internal/profile"
)

// twitter posts messages as tweets through the v2 API, authenticating
// with the BEARER_TOKEN credential.
type twitter struct {
	prof  profile.Client
	ep    *endpoint
	token string
}

func newTwitter(p profile.Client, ep *endpoint) *twitter {
	return &twitter{
		prof:  p,
		ep:    ep,
		token: p.SecretMap()["BEARER_TOKEN"],
	}
}

func (c *twitter) ID() string               { return c.prof.ID }
func (c *twitter) Kind() profile.ClientKind { return profile.KindTwitter }
func (c *twitter) Close()                   { c.ep.close() }

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	Detail string `json:"detail"`
}

func (c *twitter) Send(ctx context.Context, msg message.Message) message.Response {
	prepared := prepare(c.prof, msg)
	body, err := json.Marshal(tweetRequest{Text: prepared.Text})
	if err != nil {
		return message.Fail(http.StatusInternalServerError, "encoding tweet: "+err.Error())
	}

	req, err := c.ep.post(ctx, "2/tweets", "application/json", body)
	if err != nil {
		return message.Fail(http.StatusInternalServerError, "building request: "+err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	res, failure, ok := c.ep.do(req)
	if !ok {
		return failure
	}

	var decoded tweetResponse
	_ = json.Unmarshal(res.body, &decoded)

	// Created tweets come back as 201.
	if res.status == http.StatusCreated || res.status == http.StatusOK {
		return message.OK(decoded.Data.ID)
	}
	reason := decoded.Detail
	if reason == "" {
		reason = fmt.Sprintf("tweet rejected with status %d", res.status)
	}
	return message.Fail(res.status, reason)
}

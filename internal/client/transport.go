package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/impbridge/impbridge/internal/message"
	"github.com/impbridge/impbridge/internal/profile"
)

// maxResponseBody bounds how much of a vendor reply is read.
const maxResponseBody = 1 << 20

// endpoint wraps the HTTP plumbing shared by all adapters: base URL
// handling, the lazily built http.Client and the mapping from transport
// failures to response statuses.
type endpoint struct {
	base      string
	userAgent string
	prof      profile.Client

	once   sync.Once
	client *http.Client
}

func newEndpoint(p profile.Client) *endpoint {
	return &endpoint{
		base:      strings.TrimRight(p.BaseAddress, "/") + "/",
		userAgent: p.UserAgent,
		prof:      p,
	}
}

// url joins a relative path (no leading slash) onto the base address.
func (e *endpoint) url(path string) string {
	return e.base + strings.TrimLeft(path, "/")
}

// httpClient builds the client on first use. Construction is deferred so
// that loading a large profile set does not allocate transports for
// clients that never see traffic.
func (e *endpoint) httpClient() *http.Client {
	e.once.Do(func() {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if e.prof.DisableTLSValidation {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		e.client = &http.Client{
			Transport: transport,
			Timeout:   e.prof.Timeout(),
		}
	})
	return e.client
}

// close releases idle connections without touching in-flight requests.
// The client is disposed of on a separate goroutine so that Close never
// blocks a refresh.
func (e *endpoint) close() {
	go func() {
		e.once.Do(func() {}) // settle the lazy init
		if e.client != nil {
			e.client.CloseIdleConnections()
		}
	}()
}

// result is the raw outcome of one HTTP exchange.
type result struct {
	status int
	body   []byte
}

// do performs the request and reads the reply. A timeout maps to 408, any
// other transport failure to 500; the returned Response is only meaningful
// when ok is false.
func (e *endpoint) do(req *http.Request) (result, message.Response, bool) {
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	resp, err := e.httpClient().Do(req)
	if err != nil {
		if isTimeout(err) {
			return result{}, message.Fail(http.StatusRequestTimeout, "request timed out"), false
		}
		return result{}, message.Fail(http.StatusInternalServerError, "request failed: "+err.Error()), false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if isTimeout(err) {
			return result{}, message.Fail(http.StatusRequestTimeout, "request timed out"), false
		}
		return result{}, message.Fail(http.StatusInternalServerError, "reading response failed: "+err.Error()), false
	}
	return result{status: resp.StatusCode, body: body}, message.Response{}, true
}

// post issues a POST with the given content type and body.
func (e *endpoint) post(ctx context.Context, path, contentType string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url(path), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// postForm issues an application/x-www-form-urlencoded POST.
func (e *endpoint) postForm(ctx context.Context, path string, form url.Values) (*http.Request, error) {
	return e.post(ctx, path, "application/x-www-form-urlencoded", []byte(form.Encode()))
}

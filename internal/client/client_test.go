package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/impbridge/impbridge/internal/auth"
	"github.com/impbridge/impbridge/internal/message"
	"github.com/impbridge/impbridge/internal/profile"
)

func TestNewFactory(t *testing.T) {
	kinds := []profile.ClientKind{
		profile.KindImpV1, profile.KindTwitter, profile.KindFacebook, profile.KindStub,
	}
	for _, kind := range kinds {
		m, err := New(profile.Client{
			ID: "c1", Kind: kind, BaseAddress: "http://example.invalid", Enabled: true,
		})
		if err != nil {
			t.Fatalf("kind %s: %v", kind, err)
		}
		if m.Kind() != kind {
			t.Errorf("expected kind %s, got %s", kind, m.Kind())
		}
		if m.ID() != "c1" {
			t.Errorf("expected id c1, got %s", m.ID())
		}
		m.Close()
	}

	if _, err := New(profile.Client{ID: "bad", Kind: "telegram", BaseAddress: "http://x"}); err == nil {
		t.Error("expected unknown kind to be rejected")
	}
	if _, err := New(profile.Client{Kind: profile.KindStub, BaseAddress: "http://x"}); err == nil {
		t.Error("expected invalid profile to be rejected")
	}
}

func TestPreparePrefixThenTruncate(t *testing.T) {
	p := profile.Client{
		ID: "c1", Kind: profile.KindStub, BaseAddress: "http://x",
		PrefixUser: true, MaxText: 12,
	}
	msg := message.Message{GroupID: "G1", UserName: "alice", Text: "a long message body"}

	got := prepare(p, msg)
	// "alice: a lon..." would exceed 12; prefix applies first, then the cut.
	if got.Text != "alice: a ..." {
		t.Errorf("unexpected prepared text %q", got.Text)
	}
	if len(got.Text) != 12 {
		t.Errorf("expected text capped at 12 chars, got %d", len(got.Text))
	}
	if msg.Text != "a long message body" {
		t.Error("prepare must not mutate the caller's message")
	}
}

func TestPrepareIdempotent(t *testing.T) {
	p := profile.Client{
		ID: "c1", Kind: profile.KindStub, BaseAddress: "http://x",
		PrefixUser: true, MaxText: 20,
	}
	msg := message.Message{GroupID: "G1", UserName: "bob", Text: "hello out there world"}

	once := prepare(p, msg)
	twice := prepare(p, once)
	if once.Text != twice.Text {
		t.Errorf("prepare is not idempotent: %q vs %q", once.Text, twice.Text)
	}
}

func TestPrepareNoPolicy(t *testing.T) {
	p := profile.Client{ID: "c1", Kind: profile.KindStub, BaseAddress: "http://x"}
	msg := message.Message{GroupID: "G1", UserName: "alice", Text: "unchanged"}
	if got := prepare(p, msg); got.Text != "unchanged" {
		t.Errorf("expected text untouched, got %q", got.Text)
	}
}

func TestPrepareShortTextNotTruncated(t *testing.T) {
	p := profile.Client{ID: "c1", Kind: profile.KindStub, BaseAddress: "http://x", MaxText: 100}
	msg := message.Message{GroupID: "G1", UserName: "alice", Text: "short"}
	if got := prepare(p, msg); got.Text != "short" {
		t.Errorf("expected text untouched, got %q", got.Text)
	}
}

func TestPrepareTruncateBoundary(t *testing.T) {
	p := profile.Client{ID: "c1", Kind: profile.KindStub, BaseAddress: "http://x", MaxText: 10}

	// Anything past maxText-3 characters is cut, even when the full
	// text would still fit under maxText.
	msg := message.Message{GroupID: "G1", UserName: "alice", Text: "12345678"}
	if got := prepare(p, msg); got.Text != "1234567..." {
		t.Errorf("text past the cut point must be truncated, got %q", got.Text)
	}

	msg.Text = "1234567"
	if got := prepare(p, msg); got.Text != "1234567" {
		t.Errorf("text at the cut point must stay untouched, got %q", got.Text)
	}
}

func TestPrepareTruncateKeepsRunesIntact(t *testing.T) {
	p := profile.Client{ID: "c1", Kind: profile.KindStub, BaseAddress: "http://x", MaxText: 7}
	msg := message.Message{GroupID: "G1", UserName: "alice", Text: "héllo wörld"}

	got := prepare(p, msg)
	if !utf8.ValidString(got.Text) {
		t.Fatalf("truncated text is not valid UTF-8: %q", got.Text)
	}
	if got.Text != "héll..." {
		t.Errorf("unexpected truncated text %q", got.Text)
	}
}

func TestStubDefaults(t *testing.T) {
	m, err := New(profile.Client{ID: "s1", Kind: profile.KindStub, BaseAddress: "http://x", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	resp := m.Send(context.Background(), message.Message{
		GroupID: "G1", UserName: "alice", Text: "hello", MsgID: "abc123def456",
	})
	if !resp.IsOK() || resp.Content != "abc123def456" {
		t.Errorf("expected success echoing the msgId, got %+v", resp)
	}

	resp = m.Send(context.Background(), message.Message{GroupID: "G1", UserName: "alice", Text: "hello"})
	if !resp.IsOK() || !message.ValidMsgID(resp.Content) {
		t.Errorf("expected a generated msgId, got %+v", resp)
	}
}

func TestStubStatusFromText(t *testing.T) {
	m, _ := New(profile.Client{ID: "s1", Kind: profile.KindStub, BaseAddress: "http://x", Enabled: true})

	resp := m.Send(context.Background(), message.Message{GroupID: "G1", UserName: "alice", Text: "503"})
	if resp.Status != 503 {
		t.Errorf("expected text 503 to force status 503, got %+v", resp)
	}
	resp = m.Send(context.Background(), message.Message{GroupID: "G1", UserName: "alice", Text: "99"})
	if resp.Status != 200 {
		t.Errorf("out-of-range numbers are ordinary text, got %+v", resp)
	}
}

func TestStubForcedStatus(t *testing.T) {
	m, _ := New(profile.Client{
		ID: "s1", Kind: profile.KindStub, BaseAddress: "http://x",
		Secret: "STATUS=502", Enabled: true,
	})
	resp := m.Send(context.Background(), message.Message{GroupID: "G1", UserName: "alice", Text: "hello"})
	if resp.Status != 502 {
		t.Errorf("expected forced 502, got %+v", resp)
	}
}

func TestImpV1RoundTrip(t *testing.T) {
	verifier := auth.New("shared", 0)
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if err := verifier.Verify(r.Header, body); err != nil {
			t.Errorf("forwarded request failed verification: %v", err)
		}
		var msg message.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			t.Errorf("forwarded body is not a native message: %v", err)
		}
		if msg.Text != "hello" {
			t.Errorf("unexpected forwarded text %q", msg.Text)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(message.OK("remote-msg-id"))
	}))
	defer srv.Close()

	m, err := New(profile.Client{
		ID: "peer", Kind: profile.KindImpV1, BaseAddress: srv.URL,
		Secret: "SECRET=shared", Enabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	resp := m.Send(context.Background(), message.Message{GroupID: "G1", UserName: "alice", Text: "hello"})
	if !resp.IsOK() || resp.Content != "remote-msg-id" {
		t.Fatalf("expected remote success, got %+v", resp)
	}
	if gotPath != "/PostMessage" {
		t.Errorf("expected POST to /PostMessage, got %s", gotPath)
	}
}

func TestImpV1StatusMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Transport says 200 but the body claims 500.
		json.NewEncoder(w).Encode(message.Fail(500, "boom"))
	}))
	defer srv.Close()

	m, _ := New(profile.Client{ID: "peer", Kind: profile.KindImpV1, BaseAddress: srv.URL, Enabled: true})
	resp := m.Send(context.Background(), message.Message{GroupID: "G1", UserName: "alice", Text: "hello"})
	if resp.Status != http.StatusInternalServerError || !strings.Contains(resp.Content, "mismatch") {
		t.Errorf("expected status mismatch failure, got %+v", resp)
	}
}

func TestTwitterCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok123" {
			t.Errorf("unexpected authorization %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"1777"}}`))
	}))
	defer srv.Close()

	m, _ := New(profile.Client{
		ID: "tw", Kind: profile.KindTwitter, BaseAddress: srv.URL,
		Secret: "BEARER_TOKEN=tok123", Enabled: true,
	})
	resp := m.Send(context.Background(), message.Message{GroupID: "G1", UserName: "alice", Text: "hi"})
	if !resp.IsOK() || resp.Content != "1777" {
		t.Errorf("expected tweet id as content, got %+v", resp)
	}
}

func TestTwitterRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"duplicate content"}`))
	}))
	defer srv.Close()

	m, _ := New(profile.Client{ID: "tw", Kind: profile.KindTwitter, BaseAddress: srv.URL, Enabled: true})
	resp := m.Send(context.Background(), message.Message{GroupID: "G1", UserName: "alice", Text: "hi"})
	if resp.Status != http.StatusForbidden || resp.Content != "duplicate content" {
		t.Errorf("expected vendor failure surfaced, got %+v", resp)
	}
}

func TestFacebookFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("access_token") != "fbtok" {
			t.Errorf("unexpected token %q", r.PostForm.Get("access_token"))
		}
		if r.PostForm.Get("message") != "hi" {
			t.Errorf("unexpected message %q", r.PostForm.Get("message"))
		}
		w.Write([]byte(`{"id":"page_post_9"}`))
	}))
	defer srv.Close()

	m, _ := New(profile.Client{
		ID: "fb", Kind: profile.KindFacebook, BaseAddress: srv.URL,
		Secret: "ACCESS_TOKEN=fbtok", Enabled: true,
	})
	resp := m.Send(context.Background(), message.Message{GroupID: "G1", UserName: "alice", Text: "hi"})
	if !resp.IsOK() || resp.Content != "page_post_9" {
		t.Errorf("expected post id as content, got %+v", resp)
	}
}

func TestTimeoutMapsTo408(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	m, _ := New(profile.Client{
		ID: "slow", Kind: profile.KindTwitter, BaseAddress: srv.URL,
		TimeoutMillis: 20, Enabled: true,
	})
	resp := m.Send(context.Background(), message.Message{GroupID: "G1", UserName: "alice", Text: "hi"})
	if resp.Status != http.StatusRequestTimeout {
		t.Errorf("expected 408 on timeout, got %+v", resp)
	}
}

func TestUnreachableMapsTo500(t *testing.T) {
	m, _ := New(profile.Client{
		ID: "gone", Kind: profile.KindTwitter,
		BaseAddress: "http://127.0.0.1:1", TimeoutMillis: 500, Enabled: true,
	})
	resp := m.Send(context.Background(), message.Message{GroupID: "G1", UserName: "alice", Text: "hi"})
	if resp.Status != http.StatusInternalServerError {
		t.Errorf("expected 500 on transport failure, got %+v", resp)
	}
}

func TestBaseURLNormalization(t *testing.T) {
	ep := newEndpoint(profile.Client{BaseAddress: "http://x//"})
	if got := ep.url("/PostMessage"); got != "http://x/PostMessage" {
		t.Errorf("unexpected url %q", got)
	}
	ep = newEndpoint(profile.Client{BaseAddress: "http://x"})
	if got := ep.url("feed"); got != "http://x/feed" {
		t.Errorf("unexpected url %q", got)
	}
}

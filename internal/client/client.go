// Package client implements the adapters that deliver messages to external
// messaging services. Each adapter owns one lazily built HTTP client and
// translates between the native message schema and the vendor's API.
package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/impbridge/impbridge/internal/message"
	"github.com/impbridge/impbridge/internal/profile"
)

// Messenger is one live connection to an external messaging service.
// Send never panics and never returns an error: every failure is folded
// into the Response status and content.
type Messenger interface {
	// ID returns the client profile id the adapter was built from.
	ID() string
	// Kind returns the adapter flavor.
	Kind() profile.ClientKind
	// Send delivers msg and reports the outcome.
	Send(ctx context.Context, msg message.Message) message.Response
	// Close releases idle resources. In-flight sends are unaffected.
	Close()
}

// New builds the Messenger for a client profile.
func New(p profile.Client) (Messenger, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	ep := newEndpoint(p)
	switch p.Kind {
	case profile.KindImpV1:
		return newImpV1(p, ep), nil
	case profile.KindTwitter:
		return newTwitter(p, ep), nil
	case profile.KindFacebook:
		return newFacebook(p, ep), nil
	case profile.KindStub:
		return newStub(p, ep), nil
	default:
		return nil, fmt.Errorf("client %q: no adapter for kind %q", p.ID, p.Kind)
	}
}

// prepare applies the profile's message policy to a copy of msg: the user
// name prefix first, then truncation to the text limit. Running it twice
// yields the same text, so a message relayed between two bridges is not
// mangled further.
func prepare(p profile.Client, msg message.Message) message.Message {
	if p.PrefixUser {
		prefix := msg.UserName + ": "
		if !strings.HasPrefix(msg.Text, prefix) {
			msg.Text = prefix + msg.Text
		}
	}
	if p.MaxText > 3 {
		// Counted in runes so the cut never splits a multi-byte
		// character.
		if text := []rune(msg.Text); len(text) > p.MaxText-3 {
			msg.Text = string(text[:p.MaxText-3]) + "..."
		}
	}
	return msg
}

// Package profile defines the configuration records the bridge is driven
// by: client profiles describing external messaging services and route
// profiles binding internal groups or gateways to them.
//
// Profiles are plain comparable structs. Equality by == is what decides
// whether a reload replaces a live adapter or leaves it untouched.
package profile

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Direction distinguishes the two message flows through the bridge.
type Direction string

const (
	// RemoteTerminated flows from the internal org out to external services.
	RemoteTerminated Direction = "remote-terminated"
	// RemoteOriginated flows from external services into the internal org.
	RemoteOriginated Direction = "remote-originated"
)

// ClientKind selects the adapter implementation for a client profile.
type ClientKind string

const (
	KindNone     ClientKind = ""
	KindImpV1    ClientKind = "impv1"
	KindTwitter  ClientKind = "twitter"
	KindFacebook ClientKind = "facebook"
	KindStub     ClientKind = "stub"
)

// DefaultTimeout applies when a client profile leaves Timeout unset.
const DefaultTimeout = 10 * time.Second

// Client describes one external messaging service endpoint.
type Client struct {
	ID          string     `json:"clientId"`
	Kind        ClientKind `json:"kind"`
	BaseAddress string     `json:"baseAddress"`
	// Secret holds comma-separated key=value credential pairs,
	// e.g. "SECRET=abc" or "BEARER_TOKEN=xyz".
	Secret               string `json:"secret,omitempty"`
	UserAgent            string `json:"userAgent,omitempty"`
	MaxText              int    `json:"maxText,omitempty"`
	TimeoutMillis        int    `json:"timeout,omitempty"`
	PrefixUser           bool   `json:"prefixUser,omitempty"`
	DisableTLSValidation bool   `json:"disableTlsValidation,omitempty"`
	Enabled              bool   `json:"enabled"`
}

// Validate checks the structural invariants of a client profile.
func (c Client) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("client profile missing clientId")
	}
	switch c.Kind {
	case KindImpV1, KindTwitter, KindFacebook, KindStub:
	case KindNone:
		return fmt.Errorf("client %q missing kind", c.ID)
	default:
		return fmt.Errorf("client %q has unknown kind %q", c.ID, c.Kind)
	}
	if strings.TrimSpace(c.BaseAddress) == "" {
		return fmt.Errorf("client %q missing baseAddress", c.ID)
	}
	u, err := url.Parse(c.BaseAddress)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("client %q has invalid baseAddress %q", c.ID, c.BaseAddress)
	}
	if c.MaxText < 0 {
		return fmt.Errorf("client %q has negative maxText", c.ID)
	}
	if c.TimeoutMillis < 0 {
		return fmt.Errorf("client %q has negative timeout", c.ID)
	}
	return nil
}

// Timeout returns the per-request timeout, defaulted when unset.
func (c Client) Timeout() time.Duration {
	if c.TimeoutMillis <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// SecretMap parses the Secret field into its key=value pairs. Malformed
// segments without '=' are skipped. Keys are uppercased so lookups are
// case-insensitive.
func (c Client) SecretMap() map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(c.Secret, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.ToUpper(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// Route binds an internal group (remote-terminated) or an external gateway
// (remote-originated) to a set of clients.
type Route struct {
	ID                 string `json:"routeId"`
	IsRemoteOriginated bool   `json:"isRemoteOriginated,omitempty"`
	Enabled            bool   `json:"enabled"`
	// Clients is the comma-separated list of client profile ids to fan
	// the message out to.
	Clients string `json:"clients"`
	// Tags is the comma-separated list of accepted message tags; empty
	// accepts everything.
	Tags string `json:"tags,omitempty"`
	// Secret authenticates inbound requests on this route. Required on
	// remote-originated routes, forbidden on remote-terminated ones.
	Secret string `json:"secret,omitempty"`
	// ThrottleRate caps accepted messages per minute; 0 means unlimited.
	ThrottleRate int `json:"throttleRate,omitempty"`
	// Replies admits messages that carry a parentMsgId.
	Replies bool `json:"replies,omitempty"`
}

// Direction reports which flow the route serves.
func (r Route) Direction() Direction {
	if r.IsRemoteOriginated {
		return RemoteOriginated
	}
	return RemoteTerminated
}

// Validate checks the structural invariants of a route profile.
func (r Route) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("route profile missing routeId")
	}
	if len(r.ClientIDs()) == 0 {
		return fmt.Errorf("route %q has no clients", r.ID)
	}
	if r.ThrottleRate < 0 {
		return fmt.Errorf("route %q has negative throttleRate", r.ID)
	}
	if r.IsRemoteOriginated && strings.TrimSpace(r.Secret) == "" {
		return fmt.Errorf("remote-originated route %q missing secret", r.ID)
	}
	if !r.IsRemoteOriginated && strings.TrimSpace(r.Secret) != "" {
		return fmt.Errorf("remote-terminated route %q must not carry a secret", r.ID)
	}
	return nil
}

// ClientIDs splits the Clients field, dropping empty segments.
func (r Route) ClientIDs() []string {
	return splitList(r.Clients)
}

// TagSet returns the accepted tags folded to lower case. A nil result
// means the route accepts any tag.
func (r Route) TagSet() map[string]bool {
	tags := splitList(r.Tags)
	if len(tags) == 0 {
		return nil
	}
	set := make(map[string]bool, len(tags))
	for _, tag := range tags {
		set[strings.ToLower(tag)] = true
	}
	return set
}

// AcceptsTag reports whether the route admits a message with the given tag.
func (r Route) AcceptsTag(tag string) bool {
	set := r.TagSet()
	if set == nil {
		return true
	}
	return set[strings.ToLower(tag)]
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Package router implements the per-route message pipeline: validation,
// authentication, policy gates, throttling and the fan-out to client
// adapters.
package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/impbridge/impbridge/internal/auth"
	"github.com/impbridge/impbridge/internal/client"
	"github.com/impbridge/impbridge/internal/message"
	"github.com/impbridge/impbridge/internal/metrics"
	"github.com/impbridge/impbridge/internal/profile"
	"github.com/impbridge/impbridge/internal/throttle"
)

// Failure contents returned to callers. Authentication failures are
// deliberately generic; the specific reason only goes to the log.
const (
	ContentAuthFailed   = "Authentication failed"
	ContentThrottled    = "Requests limit reached"
	ContentNoClients    = "No clients available"
	ContentNotDelivered = "Message was not delivered to any client"
)

// Lookup resolves a client profile id to its live adapter.
type Lookup func(id string) (client.Messenger, bool)

// Options carries the collaborators a Router needs.
type Options struct {
	Clients    Lookup
	Dispatcher *Dispatcher
	// Wait makes PostMessage block on the fan-out and aggregate the
	// client outcomes; otherwise delivery happens in the background.
	Wait    bool
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// Router handles messages for one route profile.
type Router struct {
	route      profile.Route
	direction  profile.Direction
	verifier   *auth.Authenticator
	counter    *throttle.Counter
	clients    Lookup
	dispatcher *Dispatcher
	wait       bool
	log        *zap.Logger
	metrics    *metrics.Collector
}

// New builds the Router for a route profile. Remote-terminated routes
// carry no secret, so their verifier accepts everything.
func New(route profile.Route, opts Options) (*Router, error) {
	if err := route.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher(0)
	}
	return &Router{
		route:      route,
		direction:  route.Direction(),
		verifier:   auth.New(route.Secret, 0),
		counter:    throttle.NewCounter(route.ThrottleRate),
		clients:    opts.Clients,
		dispatcher: dispatcher,
		wait:       opts.Wait,
		log:        log.With(zap.String("route", route.ID)),
		metrics:    opts.Metrics,
	}, nil
}

// Route returns the profile the router was built from.
func (r *Router) Route() profile.Route { return r.route }

// UnresolvedClients returns the client ids the route references that the
// lookup cannot resolve right now.
func (r *Router) UnresolvedClients() []string {
	var missing []string
	for _, id := range r.route.ClientIDs() {
		if _, ok := r.clients(id); !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// PostMessage runs the full pipeline for one inbound message. hdr and body
// are the raw request headers and payload the signature was computed over.
// It never panics; an escaped panic is answered as a 500.
func (r *Router) PostMessage(ctx context.Context, msg message.Message, hdr http.Header, body []byte) (resp message.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic handling message", zap.Any("panic", rec))
			resp = message.Fail(http.StatusInternalServerError, "Internal error")
		}
		r.metrics.RecordMessage(string(r.direction), r.route.ID, resp.Status)
	}()

	if err := msg.Validate(r.direction == profile.RemoteOriginated); err != nil {
		return message.Fail(http.StatusBadRequest, err.Error())
	}
	if err := r.verifier.Verify(hdr, body); err != nil {
		r.log.Warn("authentication rejected", zap.Error(err))
		r.metrics.RecordAuthFailure(r.route.ID)
		return message.Fail(http.StatusUnauthorized, ContentAuthFailed)
	}
	if !r.route.Enabled {
		return message.Fail(http.StatusBadRequest, "Route disabled")
	}
	if !r.route.AcceptsTag(msg.Tag) {
		return message.Fail(http.StatusBadRequest, fmt.Sprintf("Invalid tag %q", msg.Tag))
	}
	isReply := msg.ParentMsgID != ""
	if isReply && !r.route.Replies {
		return message.Fail(http.StatusBadRequest, "Replies not accepted")
	}
	if r.counter.Throttled() {
		r.metrics.RecordThrottled(r.route.ID)
		return message.Fail(http.StatusTooManyRequests, ContentThrottled)
	}

	targets := r.resolve()
	if len(targets) == 0 {
		r.log.Error("no clients resolved", zap.Strings("wanted", r.route.ClientIDs()))
		return message.Fail(http.StatusInternalServerError, ContentNoClients)
	}
	if msg.MsgID == "" {
		msg.MsgID = message.NewMsgID()
	}

	if !r.wait {
		dispatched := 0
		for _, target := range targets {
			if isReply && !relaysReplies(target.Kind()) {
				r.log.Warn("reply skipped",
					zap.String("client", target.ID()),
					zap.String("msgId", msg.MsgID))
				continue
			}
			target := target
			r.dispatcher.Go(func() {
				r.send(context.Background(), target, msg)
			})
			dispatched++
		}
		if dispatched == 0 {
			return message.Fail(http.StatusBadRequest, ContentNotDelivered)
		}
		return message.OK(msg.MsgID)
	}

	// Adapters run one after another on the caller, in list order.
	total := len(targets)
	successes := 0
	latched := 0
	var reasons []string
	for _, target := range targets {
		if isReply && !relaysReplies(target.Kind()) {
			// A skip counts against the delivery tally but only a real
			// send decides the status.
			reasons = append(reasons, fmt.Sprintf("client %s does not relay replies", target.ID()))
			continue
		}
		sent := r.send(ctx, target, msg)
		if sent.IsOK() {
			successes++
			continue
		}
		if latched == 0 {
			latched = sent.Status
		}
		reasons = append(reasons, sent.Content)
	}
	return aggregate(msg.MsgID, total, successes, latched, reasons)
}

// resolve maps the route's client ids to live adapters, dropping the ones
// the registry does not know.
func (r *Router) resolve() []client.Messenger {
	ids := r.route.ClientIDs()
	targets := make([]client.Messenger, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.clients(id); ok {
			targets = append(targets, m)
		}
	}
	return targets
}

// relaysReplies reports whether an adapter kind can thread a reply.
// Only native-protocol peers carry the message thread through; other
// services would post the reply as an unrelated message.
func relaysReplies(k profile.ClientKind) bool {
	return k == profile.KindImpV1 || k == profile.KindStub
}

// send delivers to one adapter, recording the outcome.
func (r *Router) send(ctx context.Context, target client.Messenger, msg message.Message) message.Response {
	start := time.Now()
	resp := target.Send(ctx, msg)
	elapsed := time.Since(start)
	r.metrics.RecordForward(target.ID(), resp.Status, elapsed)
	if resp.IsOK() {
		r.log.Debug("forwarded",
			zap.String("client", target.ID()),
			zap.String("msgId", msg.MsgID),
			zap.Duration("elapsed", elapsed))
	} else {
		r.log.Warn("forward failed",
			zap.String("client", target.ID()),
			zap.String("msgId", msg.MsgID),
			zap.Int("status", resp.Status),
			zap.String("reason", resp.Content))
	}
	return resp
}

// aggregate folds the fan-out outcome into one response. The first
// failed send decides the overall status; with several clients the
// content also reports how many deliveries went through.
func aggregate(msgID string, total, successes, latched int, reasons []string) message.Response {
	if len(reasons) == 0 {
		return message.OK(msgID)
	}
	if successes == 0 && latched == 0 {
		return message.Fail(http.StatusBadRequest, ContentNotDelivered)
	}
	status := latched
	if status == 0 {
		status = http.StatusOK
	}
	if total == 1 {
		return message.Response{Status: status, Content: reasons[0]}
	}
	return message.Response{Status: status, Content: fmt.Sprintf("%d of %d succeeded: %s",
		successes, total, strings.Join(reasons, "; "))}
}

// Snapshot is the routing-dump view of one router.
type Snapshot struct {
	Route      profile.Route     `json:"route"`
	Direction  profile.Direction `json:"direction"`
	Throttle   throttle.Snapshot `json:"throttle"`
	Unresolved []string          `json:"unresolvedClients,omitempty"`
}

// Snapshot reports the router state with the route secret redacted.
func (r *Router) Snapshot() Snapshot {
	route := r.route
	if route.Secret != "" {
		route.Secret = "***"
	}
	return Snapshot{
		Route:      route,
		Direction:  r.direction,
		Throttle:   r.counter.Snapshot(),
		Unresolved: r.UnresolvedClients(),
	}
}

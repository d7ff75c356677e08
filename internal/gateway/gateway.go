// Package gateway serves the native protocol over HTTP: one listener per
// direction, each backed by the shared refresh controller.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/impbridge/impbridge/internal/auth"
	"github.com/impbridge/impbridge/internal/errors"
	"github.com/impbridge/impbridge/internal/message"
	"github.com/impbridge/impbridge/internal/profile"
	"github.com/impbridge/impbridge/internal/refresh"
	"github.com/impbridge/impbridge/internal/router"
)

// maxRequestBody bounds how much of an inbound payload is read.
const maxRequestBody = 1 << 20

// headerRequestID carries the per-request id on responses.
const headerRequestID = "X-Request-Id"

// Instance serves the native endpoints for one direction. The
// remote-terminated instance additionally exposes the operational
// endpoints (routing dump, manual refresh, metrics).
type Instance struct {
	direction  profile.Direction
	controller *refresh.Controller
	timeout    time.Duration
	log        *zap.Logger
	mux        *http.ServeMux
}

// InstanceOptions configures one direction's Instance.
type InstanceOptions struct {
	Direction  profile.Direction
	Controller *refresh.Controller
	// Timeout bounds the time spent answering one request.
	Timeout time.Duration
	Logger  *zap.Logger
	// Metrics, when set, is served at MetricsPath.
	Metrics     http.Handler
	MetricsPath string
}

// NewInstance builds the handler set for one direction.
func NewInstance(opts InstanceOptions) *Instance {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	in := &Instance{
		direction:  opts.Direction,
		controller: opts.Controller,
		timeout:    opts.Timeout,
		log:        log.With(zap.String("direction", string(opts.Direction))),
		mux:        http.NewServeMux(),
	}

	in.mux.HandleFunc("/PostMessage", in.handlePostMessage)
	in.mux.HandleFunc("/GetTime", in.handleGetTime)
	if opts.Direction == profile.RemoteTerminated {
		in.mux.HandleFunc("/GetRoutingInfo", in.handleGetRoutingInfo)
		in.mux.HandleFunc("/UpdateRouting", in.handleUpdateRouting)
		if opts.Metrics != nil {
			in.mux.Handle(opts.MetricsPath, opts.Metrics)
		}
	}
	return in
}

// Handler returns the instance handler with the request-id middleware
// applied.
func (in *Instance) Handler() http.Handler {
	return in.withRequestID(in.mux)
}

// withRequestID tags every request with a fresh id, echoed back on the
// response for correlation.
func (in *Instance) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set(headerRequestID, id)

		if api := r.Header.Get(auth.HeaderAPI); api != "" {
			in.log.Debug("api version advertised",
				zap.String("requestId", id), zap.String("api", api))
		}

		// Bound how long a stuck peer can hold the response open.
		if in.timeout > 0 {
			rc := http.NewResponseController(w)
			_ = rc.SetWriteDeadline(time.Now().Add(in.timeout))
		}
		next.ServeHTTP(w, r)
	})
}

// routeKey picks the routing identifier for the direction: internal
// messages route by group, external ones by the gateway they entered
// through.
func (in *Instance) routeKey(msg message.Message) string {
	if in.direction == profile.RemoteOriginated {
		return msg.GatewayID
	}
	return msg.GroupID
}

func (in *Instance) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errors.ErrMethodNotAllowed.WriteJSON(w)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		errors.ErrBadRequest.WithDetails("unreadable request body").WriteJSON(w)
		return
	}

	var msg message.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		errors.ErrBadRequest.WithDetails("malformed message payload").WriteJSON(w)
		return
	}

	key := in.routeKey(msg)
	rt, ok := in.controller.Router(in.direction, key)
	if !ok {
		writeNative(w, message.Fail(http.StatusBadRequest, "Unknown route "+key))
		return
	}

	ctx := r.Context()
	if in.timeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, in.timeout)
		defer cancel()
	}
	writeNative(w, rt.PostMessage(ctx, msg, r.Header, body))
}

func (in *Instance) handleGetTime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errors.ErrMethodNotAllowed.WriteJSON(w)
		return
	}
	writeNative(w, message.OK(time.Now().UTC().Format(time.RFC3339)))
}

// routingInfo is the payload served by GetRoutingInfo.
type routingInfo struct {
	RemoteTerminated []router.Snapshot `json:"remoteTerminated"`
	RemoteOriginated []router.Snapshot `json:"remoteOriginated"`
	Clients          []string          `json:"clients"`
}

func (in *Instance) handleGetRoutingInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errors.ErrMethodNotAllowed.WriteJSON(w)
		return
	}
	info := routingInfo{
		RemoteTerminated: in.controller.Snapshots(profile.RemoteTerminated),
		RemoteOriginated: in.controller.Snapshots(profile.RemoteOriginated),
		Clients:          in.controller.ClientIDs(),
	}
	payload, err := json.Marshal(info)
	if err != nil {
		errors.ErrInternalServer.WithDetails(err.Error()).WriteJSON(w)
		return
	}
	writeNative(w, message.OK(string(payload)))
}

func (in *Instance) handleUpdateRouting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		errors.ErrMethodNotAllowed.WriteJSON(w)
		return
	}
	result, err := in.controller.Refresh(r.Context())
	if err != nil {
		in.log.Error("manual refresh failed", zap.Error(err))
		writeNative(w, message.Fail(http.StatusInternalServerError, err.Error()))
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		errors.ErrInternalServer.WithDetails(err.Error()).WriteJSON(w)
		return
	}
	writeNative(w, message.OK(string(payload)))
}

// writeNative writes a native protocol response: the status doubles as
// the HTTP status.
func writeNative(w http.ResponseWriter, resp message.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	json.NewEncoder(w).Encode(resp)
}

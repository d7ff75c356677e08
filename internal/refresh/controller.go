// Package refresh reconciles the live client and route registries with
// the profile store, on a timer and on demand. A failed load leaves the
// current routing state untouched.
package refresh

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/impbridge/impbridge/internal/client"
	"github.com/impbridge/impbridge/internal/metrics"
	"github.com/impbridge/impbridge/internal/profile"
	"github.com/impbridge/impbridge/internal/registry"
	"github.com/impbridge/impbridge/internal/router"
	"github.com/impbridge/impbridge/internal/store"
)

// Store is the slice of store.Store the controller needs.
type Store interface {
	Clients(ctx context.Context) ([]profile.Client, error)
	Routes(ctx context.Context, dir profile.Direction) ([]profile.Route, error)
}

var _ Store = store.Store(nil)

// Options configures a Controller.
type Options struct {
	Store Store
	// Wait selects the blocking fan-out mode for all routers.
	Wait bool
	// DispatchLimit bounds background forwards per direction.
	DispatchLimit int
	Logger        *zap.Logger
	Metrics       *metrics.Collector
}

// Controller owns the live routing state: one client registry shared by
// both directions and one router registry per direction.
type Controller struct {
	store   Store
	log     *zap.Logger
	metrics *metrics.Collector

	clients     *registry.Registry[profile.Client, client.Messenger]
	routes      map[profile.Direction]*registry.Registry[profile.Route, *router.Router]
	dispatchers map[profile.Direction]*router.Dispatcher

	mu     sync.Mutex // serializes Refresh
	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

// NewController builds a Controller. No profiles are loaded until the
// first Refresh.
func NewController(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	c := &Controller{
		store:   opts.Store,
		log:     log,
		metrics: opts.Metrics,
		stop:    make(chan struct{}),
	}
	c.clients = registry.New(
		func(p profile.Client) string { return p.ID },
		func(p profile.Client) (client.Messenger, error) { return client.New(p) },
	)

	c.routes = make(map[profile.Direction]*registry.Registry[profile.Route, *router.Router])
	c.dispatchers = make(map[profile.Direction]*router.Dispatcher)
	for _, dir := range []profile.Direction{profile.RemoteTerminated, profile.RemoteOriginated} {
		dispatcher := router.NewDispatcher(opts.DispatchLimit)
		c.dispatchers[dir] = dispatcher
		routerOpts := router.Options{
			Clients:    c.Lookup,
			Dispatcher: dispatcher,
			Wait:       opts.Wait,
			Logger:     log,
			Metrics:    opts.Metrics,
		}
		c.routes[dir] = registry.New(
			func(p profile.Route) string { return p.ID },
			func(p profile.Route) (*router.Router, error) { return router.New(p, routerOpts) },
		)
	}
	return c
}

// Lookup resolves a client id against the live client registry.
func (c *Controller) Lookup(id string) (client.Messenger, bool) {
	return c.clients.Get(id)
}

// ClientIDs returns the ids of every live client adapter.
func (c *Controller) ClientIDs() []string {
	ids := c.clients.Keys()
	sort.Strings(ids)
	return ids
}

// Router returns the live router for a route id in the given direction.
func (c *Controller) Router(dir profile.Direction, id string) (*router.Router, bool) {
	reg, ok := c.routes[dir]
	if !ok {
		return nil, false
	}
	return reg.Get(id)
}

// Snapshots returns the routing dump for one direction.
func (c *Controller) Snapshots(dir profile.Direction) []router.Snapshot {
	reg, ok := c.routes[dir]
	if !ok {
		return nil
	}
	snaps := make([]router.Snapshot, 0, reg.Len())
	reg.Range(func(id string, p profile.Route, r *router.Router) bool {
		snaps = append(snaps, r.Snapshot())
		return true
	})
	return snaps
}

// Result summarizes one refresh pass.
type Result struct {
	Clients         int            `json:"clients"`
	Routes          map[string]int `json:"routes"`
	DisposedClients int            `json:"disposedClients"`
	ReplacedRouters int            `json:"replacedRouters"`
	ProfileErrors   []string       `json:"profileErrors,omitempty"`
	Elapsed         time.Duration  `json:"elapsed"`
}

// Refresh reloads profiles from the store and reconciles the registries.
// A store error aborts the pass and returns with the previous state fully
// intact; per-profile build errors only skip the offending profile.
func (c *Controller) Refresh(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	result := Result{Routes: make(map[string]int)}

	clientProfiles, err := c.store.Clients(ctx)
	if err != nil {
		c.metrics.RecordRefresh("clients", err)
		return result, fmt.Errorf("loading client profiles: %w", err)
	}
	enabled := clientProfiles[:0]
	for _, p := range clientProfiles {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}

	displaced, errs := c.clients.Reconcile(enabled)
	for _, old := range displaced {
		old.Close()
	}
	result.DisposedClients = len(displaced)
	result.Clients = c.clients.Len()
	for _, e := range errs {
		c.log.Warn("client profile skipped", zap.Error(e))
		result.ProfileErrors = append(result.ProfileErrors, e.Error())
	}
	c.metrics.RecordRefresh("clients", nil)

	for dir, reg := range c.routes {
		routeProfiles, err := c.store.Routes(ctx, dir)
		if err != nil {
			c.metrics.RecordRefresh(string(dir), err)
			return result, fmt.Errorf("loading %s routes: %w", dir, err)
		}
		active := routeProfiles[:0]
		for _, p := range routeProfiles {
			if p.Enabled {
				active = append(active, p)
			}
		}

		replaced, errs := reg.Reconcile(active)
		result.ReplacedRouters += len(replaced)
		result.Routes[string(dir)] = reg.Len()
		for _, e := range errs {
			c.log.Warn("route profile skipped",
				zap.String("direction", string(dir)), zap.Error(e))
			result.ProfileErrors = append(result.ProfileErrors, e.Error())
		}
		c.metrics.RecordRefresh(string(dir), nil)

		reg.Range(func(id string, p profile.Route, r *router.Router) bool {
			if missing := r.UnresolvedClients(); len(missing) > 0 {
				c.log.Warn("route references unknown clients",
					zap.String("route", id), zap.Strings("clients", missing))
			}
			return true
		})
	}

	result.Elapsed = time.Since(start)
	c.log.Info("routing refreshed",
		zap.Int("clients", result.Clients),
		zap.Any("routes", result.Routes),
		zap.Int("disposedClients", result.DisposedClients),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

// Start refreshes on the given interval until Close. interval <= 0
// disables the timer.
func (c *Controller) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-c.ticker.C:
				if _, err := c.Refresh(context.Background()); err != nil {
					c.log.Error("scheduled refresh failed", zap.Error(err))
				}
			case <-c.stop:
				return
			}
		}
	}()
}

// Drain waits for in-flight background forwards in both directions, up
// to timeout. It reports whether everything completed.
func (c *Controller) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	drained := true
	for _, d := range c.dispatchers {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if !d.Drain(remaining) {
			drained = false
		}
	}
	return drained
}

// Close stops the timer and disposes every live adapter.
func (c *Controller) Close() {
	c.once.Do(func() {
		close(c.stop)
		if c.ticker != nil {
			c.ticker.Stop()
		}
		c.clients.Range(func(id string, p profile.Client, m client.Messenger) bool {
			m.Close()
			return true
		})
	})
}

package refresh

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/impbridge/impbridge/internal/profile"
)

// fakeStore serves profiles from memory and can be switched to fail.
type fakeStore struct {
	clients []profile.Client
	routes  []profile.Route
	fail    error
}

func (s *fakeStore) Clients(ctx context.Context) ([]profile.Client, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return append([]profile.Client(nil), s.clients...), nil
}

func (s *fakeStore) Routes(ctx context.Context, dir profile.Direction) ([]profile.Route, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	var out []profile.Route
	for _, r := range s.routes {
		if r.Direction() == dir {
			out = append(out, r)
		}
	}
	return out, nil
}

func stubClient(id string) profile.Client {
	return profile.Client{
		ID: id, Kind: profile.KindStub, BaseAddress: "http://localhost/", Enabled: true,
	}
}

func newController(t *testing.T, s *fakeStore) *Controller {
	t.Helper()
	c := NewController(Options{
		Store:  s,
		Wait:   true,
		Logger: zaptest.NewLogger(t),
	})
	t.Cleanup(c.Close)
	return c
}

func TestRefreshPopulatesRegistries(t *testing.T) {
	s := &fakeStore{
		clients: []profile.Client{stubClient("c1"), stubClient("c2")},
		routes: []profile.Route{
			{ID: "G1", Enabled: true, Clients: "c1,c2"},
			{ID: "GW1", IsRemoteOriginated: true, Enabled: true, Clients: "c1", Secret: "s"},
		},
	}
	c := newController(t, s)

	result, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Clients != 2 {
		t.Errorf("expected 2 clients, got %d", result.Clients)
	}
	if result.Routes[string(profile.RemoteTerminated)] != 1 ||
		result.Routes[string(profile.RemoteOriginated)] != 1 {
		t.Errorf("unexpected route counts %v", result.Routes)
	}
	if _, ok := c.Router(profile.RemoteTerminated, "G1"); !ok {
		t.Error("expected router for G1")
	}
	if _, ok := c.Router(profile.RemoteOriginated, "GW1"); !ok {
		t.Error("expected router for GW1")
	}
	if _, ok := c.Lookup("c1"); !ok {
		t.Error("expected adapter for c1")
	}
}

func TestRefreshPreservesUnchangedAdapters(t *testing.T) {
	s := &fakeStore{
		clients: []profile.Client{stubClient("c1")},
		routes:  []profile.Route{{ID: "G1", Enabled: true, Clients: "c1"}},
	}
	c := newController(t, s)

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	adapterBefore, _ := c.Lookup("c1")
	routerBefore, _ := c.Router(profile.RemoteTerminated, "G1")

	result, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.DisposedClients != 0 || result.ReplacedRouters != 0 {
		t.Errorf("identical profiles must not replace anything: %+v", result)
	}

	adapterAfter, _ := c.Lookup("c1")
	routerAfter, _ := c.Router(profile.RemoteTerminated, "G1")
	if adapterBefore != adapterAfter {
		t.Error("adapter identity must survive a no-op refresh")
	}
	if routerBefore != routerAfter {
		t.Error("router identity must survive a no-op refresh")
	}
}

func TestRefreshReplacesChangedProfiles(t *testing.T) {
	s := &fakeStore{
		clients: []profile.Client{stubClient("c1")},
		routes:  []profile.Route{{ID: "G1", Enabled: true, Clients: "c1"}},
	}
	c := newController(t, s)
	c.Refresh(context.Background())
	before, _ := c.Lookup("c1")

	changed := stubClient("c1")
	changed.UserAgent = "bridge/2.0"
	s.clients = []profile.Client{changed}

	result, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.DisposedClients != 1 {
		t.Errorf("expected the old adapter to be disposed, got %+v", result)
	}
	after, _ := c.Lookup("c1")
	if before == after {
		t.Error("changed profile must produce a fresh adapter")
	}
}

func TestRefreshStoreErrorKeepsState(t *testing.T) {
	s := &fakeStore{
		clients: []profile.Client{stubClient("c1")},
		routes:  []profile.Route{{ID: "G1", Enabled: true, Clients: "c1"}},
	}
	c := newController(t, s)
	c.Refresh(context.Background())

	s.fail = errors.New("database gone")
	if _, err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh to report the store error")
	}

	// The previous routing state must still serve.
	if _, ok := c.Router(profile.RemoteTerminated, "G1"); !ok {
		t.Error("router must survive a failed refresh")
	}
	if _, ok := c.Lookup("c1"); !ok {
		t.Error("adapter must survive a failed refresh")
	}
}

func TestRefreshFiltersDisabledProfiles(t *testing.T) {
	off := stubClient("c2")
	off.Enabled = false
	s := &fakeStore{
		clients: []profile.Client{stubClient("c1"), off},
		routes: []profile.Route{
			{ID: "G1", Enabled: true, Clients: "c1"},
			{ID: "G2", Enabled: false, Clients: "c1"},
		},
	}
	c := newController(t, s)

	result, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Clients != 1 {
		t.Errorf("disabled client must not be loaded, got %d", result.Clients)
	}
	if _, ok := c.Lookup("c2"); ok {
		t.Error("disabled client must not resolve")
	}
	if _, ok := c.Router(profile.RemoteTerminated, "G2"); ok {
		t.Error("disabled route must not get a router")
	}
}

func TestRefreshRemovedProfileDropsRouter(t *testing.T) {
	s := &fakeStore{
		clients: []profile.Client{stubClient("c1")},
		routes: []profile.Route{
			{ID: "G1", Enabled: true, Clients: "c1"},
			{ID: "G2", Enabled: true, Clients: "c1"},
		},
	}
	c := newController(t, s)
	c.Refresh(context.Background())

	s.routes = s.routes[:1]
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Router(profile.RemoteTerminated, "G2"); ok {
		t.Error("removed route must lose its router")
	}
	if _, ok := c.Router(profile.RemoteTerminated, "G1"); !ok {
		t.Error("remaining route must keep its router")
	}
}

func TestRefreshSkipsBrokenProfiles(t *testing.T) {
	bad := profile.Client{ID: "broken", Kind: "telegram", BaseAddress: "http://x", Enabled: true}
	s := &fakeStore{
		clients: []profile.Client{stubClient("c1"), bad},
		routes:  []profile.Route{{ID: "G1", Enabled: true, Clients: "c1"}},
	}
	c := newController(t, s)

	result, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.ProfileErrors) != 1 {
		t.Errorf("expected one profile error, got %v", result.ProfileErrors)
	}
	if _, ok := c.Lookup("c1"); !ok {
		t.Error("healthy profiles must still load")
	}
	if _, ok := c.Lookup("broken"); ok {
		t.Error("broken profile must be skipped")
	}
}

func TestSnapshots(t *testing.T) {
	s := &fakeStore{
		clients: []profile.Client{stubClient("c1")},
		routes: []profile.Route{
			{ID: "GW1", IsRemoteOriginated: true, Enabled: true, Clients: "c1", Secret: "s"},
		},
	}
	c := newController(t, s)
	c.Refresh(context.Background())

	snaps := c.Snapshots(profile.RemoteOriginated)
	if len(snaps) != 1 || snaps[0].Route.ID != "GW1" {
		t.Fatalf("unexpected snapshots %+v", snaps)
	}
	if snaps[0].Route.Secret != "***" {
		t.Error("dump must not leak secrets")
	}
	if len(c.Snapshots(profile.RemoteTerminated)) != 0 {
		t.Error("expected no remote-terminated snapshots")
	}
}

// Package routes holds the routing table consulted by the resolver.
package routes

import (
	"context"
	"sync/atomic"
)

// Route maps a target name to an upstream host. Port is used when the
// request does not name a port; Ports lists additional ports a request may
// select explicitly.
type Route struct {
	Name     string `json:"name"`
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
	Ports    []int  `json:"ports,omitempty"`
}

// Allows reports whether port may be used for this route
func (r Route) Allows(port int) bool {
	if port == r.Port {
		return true
	}
	for _, p := range r.Ports {
		if p == port {
			return true
		}
	}
	return false
}

// Table looks up routes by name
type Table interface {
	Lookup(ctx context.Context, name string) (Route, bool, error)
}

// StaticTable is an in-memory table. Each lookup reads one immutable
// snapshot; Replace swaps the snapshot atomically.
type StaticTable struct {
	snapshot atomic.Pointer[map[string]Route]
}

// NewStaticTable creates a static table from routes
func NewStaticTable(routes []Route) *StaticTable {
	t := &StaticTable{}
	t.Replace(routes)
	return t
}

// Replace installs a new set of routes
func (t *StaticTable) Replace(routes []Route) {
	m := make(map[string]Route, len(routes))
	for _, r := range routes {
		m[r.Name] = r
	}
	t.snapshot.Store(&m)
}

// Lookup returns the route registered under name
func (t *StaticTable) Lookup(_ context.Context, name string) (Route, bool, error) {
	m := t.snapshot.Load()
	if m == nil {
		return Route{}, false, nil
	}
	r, ok := (*m)[name]
	return r, ok, nil
}

// Len returns the number of routes in the current snapshot
func (t *StaticTable) Len() int {
	m := t.snapshot.Load()
	if m == nil {
		return 0
	}
	return len(*m)
}

// Chain consults tables in order; the first table that knows the name wins
type Chain []Table

// Lookup implements Table
func (c Chain) Lookup(ctx context.Context, name string) (Route, bool, error) {
	for _, t := range c {
		r, ok, err := t.Lookup(ctx, name)
		if err != nil {
			return Route{}, false, err
		}
		if ok {
			return r, true, nil
		}
	}
	return Route{}, false, nil
}

// Package resolver maps inbound request paths to upstream hosts.
//
// Paths address an upstream as /<target>[/<rest>] where target is either
// "name" or "name:port". The name is looked up in a routes.Table; the port,
// when given, must be one the route allows. The remainder of the path is
// what the upstream receives.
package resolver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"wsbridge/internal/routes"
	"wsbridge/pkg/errors"
)

// PortHeader selects the upstream port when the path does not name one
const PortHeader = "X-Upstream-Port"

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// UpstreamInfo identifies the upstream peer of a bridge
type UpstreamInfo struct {
	Hostname string
	Port     int
}

// Addr returns host:port
func (u UpstreamInfo) Addr() string {
	return net.JoinHostPort(u.Hostname, strconv.Itoa(u.Port))
}

// URL returns the upstream WebSocket URL for path
func (u UpstreamInfo) URL(path string) string {
	return "ws://" + u.Addr() + path
}

// Resolver resolves request paths against a route table
type Resolver struct {
	table routes.Table
}

// New creates a resolver
func New(table routes.Table) *Resolver {
	return &Resolver{table: table}
}

// Resolve maps the escaped request path and header to the upstream it
// addresses. It reads a single snapshot of the table and has no side effects.
func (r *Resolver) Resolve(ctx context.Context, requestPath string, header http.Header) (UpstreamInfo, error) {
	name, portStr, _, err := splitTarget(requestPath)
	if err != nil {
		return UpstreamInfo{}, err
	}
	if portStr == "" && header != nil {
		portStr = header.Get(PortHeader)
	}

	port := 0
	if portStr != "" {
		if port, err = parsePort(portStr); err != nil {
			return UpstreamInfo{}, err
		}
	}

	route, ok, err := r.table.Lookup(ctx, name)
	if err != nil {
		return UpstreamInfo{}, errors.BadGateway("route lookup failed").WithCause(err)
	}
	if !ok {
		return UpstreamInfo{}, errors.NotFound("route", name)
	}

	if port == 0 {
		port = route.Port
	} else if !route.Allows(port) {
		return UpstreamInfo{}, errors.NotFound("route", fmt.Sprintf("%s:%d", name, port))
	}

	info := UpstreamInfo{Hostname: route.Hostname, Port: port}
	if err := info.validate(); err != nil {
		return UpstreamInfo{}, err
	}
	return info, nil
}

// UpstreamPath returns the path the upstream receives for the escaped requestPath,
// including rawQuery when present.
func UpstreamPath(requestPath, rawQuery string) string {
	_, _, rest, err := splitTarget(requestPath)
	if err != nil {
		rest = "/"
	}
	if rawQuery != "" {
		return rest + "?" + rawQuery
	}
	return rest
}

// splitTarget splits the escaped path "/name[:port][/rest]" into its parts.
// Only the target segment is unescaped; rest stays escaped for the upstream
// URL.
func splitTarget(escapedPath string) (name, port, rest string, err error) {
	if !strings.HasPrefix(escapedPath, "/") {
		return "", "", "", errors.Validation("path must start with '/'")
	}

	trimmed := strings.TrimPrefix(escapedPath, "/")
	target, rest := trimmed, "/"
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		target, rest = trimmed[:i], trimmed[i:]
	}

	target, uerr := url.PathUnescape(target)
	if uerr != nil {
		return "", "", "", errors.Validation("path is not valid URL encoding").WithCause(uerr)
	}
	if target == "" {
		return "", "", "", errors.Validation("path does not name an upstream target")
	}

	name = target
	if i := strings.IndexByte(target, ':'); i >= 0 {
		name, port = target[:i], target[i+1:]
		if port == "" {
			return "", "", "", errors.Validation(fmt.Sprintf("target %q has an empty port", target))
		}
	}
	if !nameRe.MatchString(name) {
		return "", "", "", errors.Validation(fmt.Sprintf("invalid target name %q", name))
	}
	return name, port, rest, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Validation(fmt.Sprintf("port %q is not a number", s))
	}
	if port <= 0 || port > 65535 {
		return 0, errors.Validation(fmt.Sprintf("port %d out of range", port))
	}
	return port, nil
}

func (u UpstreamInfo) validate() error {
	if u.Hostname == "" {
		return errors.Validation("upstream hostname is empty")
	}
	if u.Port <= 0 || u.Port > 65535 {
		return errors.Validation(fmt.Sprintf("upstream port %d out of range", u.Port))
	}
	return nil
}

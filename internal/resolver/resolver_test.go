package resolver

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"

	"wsbridge/internal/routes"
	"wsbridge/pkg/errors"
)

func newTestResolver() (*Resolver, *routes.StaticTable) {
	table := routes.NewStaticTable([]routes.Route{
		{Name: "chat", Hostname: "chat.internal", Port: 3000, Ports: []int{3001}},
		{Name: "feed.v2", Hostname: "feed.internal", Port: 4000},
		{Name: "broken", Hostname: "", Port: 5000},
	})
	return New(table), table
}

func TestResolve(t *testing.T) {
	r, _ := newTestResolver()

	tests := []struct {
		name     string
		path     string
		header   http.Header
		want     UpstreamInfo
		wantKind errors.Kind
	}{
		{
			name: "default port",
			path: "/chat/socket",
			want: UpstreamInfo{Hostname: "chat.internal", Port: 3000},
		},
		{
			name: "bare target",
			path: "/feed.v2",
			want: UpstreamInfo{Hostname: "feed.internal", Port: 4000},
		},
		{
			name: "explicit allowed port",
			path: "/chat:3001/socket",
			want: UpstreamInfo{Hostname: "chat.internal", Port: 3001},
		},
		{
			name:   "port header",
			path:   "/chat/socket",
			header: http.Header{PortHeader: []string{"3001"}},
			want:   UpstreamInfo{Hostname: "chat.internal", Port: 3001},
		},
		{
			name:   "path port wins over header",
			path:   "/chat:3000/socket",
			header: http.Header{PortHeader: []string{"3001"}},
			want:   UpstreamInfo{Hostname: "chat.internal", Port: 3000},
		},
		{
			name:     "unknown target",
			path:     "/missing/socket",
			wantKind: errors.KindNotFound,
		},
		{
			name:     "port not allowed",
			path:     "/chat:9999/socket",
			wantKind: errors.KindNotFound,
		},
		{
			name:     "empty path",
			path:     "/",
			wantKind: errors.KindValidation,
		},
		{
			name:     "relative path",
			path:     "chat/socket",
			wantKind: errors.KindValidation,
		},
		{
			name:     "non numeric port",
			path:     "/chat:abc/socket",
			wantKind: errors.KindValidation,
		},
		{
			name:     "port zero",
			path:     "/chat:0",
			wantKind: errors.KindValidation,
		},
		{
			name:     "port too large",
			path:     "/chat:65536",
			wantKind: errors.KindValidation,
		},
		{
			name:     "empty port",
			path:     "/chat:/x",
			wantKind: errors.KindValidation,
		},
		{
			name:     "invalid name",
			path:     "/-chat/x",
			wantKind: errors.KindValidation,
		},
		{
			name:     "bad escape",
			path:     "/ch%zzat/x",
			wantKind: errors.KindValidation,
		},
		{
			name:     "empty hostname in table",
			path:     "/broken",
			wantKind: errors.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.path, tt.header)

			if tt.wantKind != "" {
				if err == nil {
					t.Fatalf("expected %s error, got %+v", tt.wantKind, got)
				}
				var e *errors.Error
				if !stderrors.As(err, &e) {
					t.Fatalf("expected structured error, got %T", err)
				}
				if e.Kind != tt.wantKind {
					t.Errorf("kind = %v, want %v", e.Kind, tt.wantKind)
				}
				return
			}

			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveSeesTableReplace(t *testing.T) {
	r, table := newTestResolver()
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "/late/x", nil); err == nil {
		t.Fatal("late should not resolve yet")
	}

	table.Replace([]routes.Route{{Name: "late", Hostname: "late.internal", Port: 7000}})

	got, err := r.Resolve(ctx, "/late/x", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Hostname != "late.internal" {
		t.Errorf("Resolve() = %+v", got)
	}
}

var errTableDown = stderrors.New("redis down")

type errTable struct{}

func (errTable) Lookup(context.Context, string) (routes.Route, bool, error) {
	return routes.Route{}, false, errTableDown
}

func TestResolveTableError(t *testing.T) {
	_, err := New(errTable{}).Resolve(context.Background(), "/chat", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	e := errors.Normalize(err)
	if e.Kind != errors.KindBadGateway {
		t.Errorf("kind = %v, want bad_gateway", e.Kind)
	}
	if e.Code() != "BAD_GATEWAY" || e.HTTPStatusCode() != http.StatusBadGateway {
		t.Errorf("error = %s/%d, want BAD_GATEWAY/502", e.Code(), e.HTTPStatusCode())
	}
	if !stderrors.Is(err, errTableDown) {
		t.Error("lookup failure should be kept as the cause")
	}
}

func TestUpstreamPath(t *testing.T) {
	tests := []struct {
		path  string
		query string
		want  string
	}{
		{"/chat", "", "/"},
		{"/chat/", "", "/"},
		{"/chat/socket", "", "/socket"},
		{"/chat:3001/a/b", "", "/a/b"},
		{"/chat/socket", "token=abc", "/socket?token=abc"},
		{"/chat/a%20b", "", "/a%20b"},
		{"/", "", "/"},
	}

	for _, tt := range tests {
		if got := UpstreamPath(tt.path, tt.query); got != tt.want {
			t.Errorf("UpstreamPath(%q, %q) = %q, want %q", tt.path, tt.query, got, tt.want)
		}
	}
}

func TestUpstreamInfo(t *testing.T) {
	u := UpstreamInfo{Hostname: "chat.internal", Port: 3000}
	if u.Addr() != "chat.internal:3000" {
		t.Errorf("Addr() = %q", u.Addr())
	}
	if u.URL("/socket?x=1") != "ws://chat.internal:3000/socket?x=1" {
		t.Errorf("URL() = %q", u.URL("/socket?x=1"))
	}
}

package routes

import (
	"context"
	"errors"
	"testing"
)

func TestRouteAllows(t *testing.T) {
	r := Route{Name: "chat", Hostname: "h", Port: 3000, Ports: []int{3001}}

	tests := []struct {
		port int
		want bool
	}{
		{3000, true},
		{3001, true},
		{3002, false},
	}

	for _, tt := range tests {
		if got := r.Allows(tt.port); got != tt.want {
			t.Errorf("Allows(%d) = %v, want %v", tt.port, got, tt.want)
		}
	}
}

func TestStaticTable(t *testing.T) {
	ctx := context.Background()
	table := NewStaticTable([]Route{
		{Name: "chat", Hostname: "chat.internal", Port: 3000},
	})

	r, ok, err := table.Lookup(ctx, "chat")
	if err != nil || !ok {
		t.Fatalf("Lookup(chat) = %v, %v, %v", r, ok, err)
	}
	if r.Hostname != "chat.internal" {
		t.Errorf("Hostname = %q", r.Hostname)
	}

	if _, ok, _ := table.Lookup(ctx, "feed"); ok {
		t.Error("feed should not be found")
	}

	table.Replace([]Route{{Name: "feed", Hostname: "feed.internal", Port: 4000}})

	if _, ok, _ := table.Lookup(ctx, "chat"); ok {
		t.Error("chat should be gone after Replace")
	}
	if _, ok, _ := table.Lookup(ctx, "feed"); !ok {
		t.Error("feed should be found after Replace")
	}
	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
}

func TestStaticTableZeroValue(t *testing.T) {
	var table StaticTable
	if _, ok, err := table.Lookup(context.Background(), "x"); ok || err != nil {
		t.Errorf("zero table lookup = %v, %v", ok, err)
	}
	if table.Len() != 0 {
		t.Errorf("Len() = %d", table.Len())
	}
}

type failingTable struct{ err error }

func (f failingTable) Lookup(context.Context, string) (Route, bool, error) {
	return Route{}, false, f.err
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	first := NewStaticTable([]Route{{Name: "chat", Hostname: "first", Port: 1}})
	second := NewStaticTable([]Route{
		{Name: "chat", Hostname: "second", Port: 1},
		{Name: "feed", Hostname: "second", Port: 2},
	})
	chain := Chain{first, second}

	r, ok, err := chain.Lookup(ctx, "chat")
	if err != nil || !ok || r.Hostname != "first" {
		t.Errorf("Lookup(chat) = %+v, %v, %v", r, ok, err)
	}

	r, ok, err = chain.Lookup(ctx, "feed")
	if err != nil || !ok || r.Hostname != "second" {
		t.Errorf("Lookup(feed) = %+v, %v, %v", r, ok, err)
	}

	if _, ok, _ := chain.Lookup(ctx, "none"); ok {
		t.Error("none should not be found")
	}

	boom := errors.New("boom")
	if _, _, err := (Chain{failingTable{boom}, second}).Lookup(ctx, "feed"); !errors.Is(err, boom) {
		t.Errorf("expected table error, got %v", err)
	}
}

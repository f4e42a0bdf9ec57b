package redis

import (
	"context"
	"errors"
	"testing"

	"wsbridge/internal/routes"
)

// mockClient is an in-memory Client
type mockClient struct {
	hashes map[string]map[string]string
	err    error
	closed bool
}

func newMockClient() *mockClient {
	return &mockClient{hashes: make(map[string]map[string]string)}
}

func (m *mockClient) HGet(_ context.Context, key, field string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.hashes[key][field]
	return v, ok, nil
}

func (m *mockClient) HSet(_ context.Context, key, field, value string) error {
	if m.err != nil {
		return m.err
	}
	if m.hashes[key] == nil {
		m.hashes[key] = make(map[string]string)
	}
	m.hashes[key][field] = value
	return nil
}

func (m *mockClient) HDel(_ context.Context, key, field string) error {
	delete(m.hashes[key], field)
	return nil
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

func TestTablePutLookupDelete(t *testing.T) {
	ctx := context.Background()
	client := newMockClient()
	table := NewTable(client, "")

	route := routes.Route{Name: "chat", Hostname: "chat.internal", Port: 3000, Ports: []int{3001}}
	if err := table.Put(ctx, route); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := client.hashes[DefaultKey]["chat"]; !ok {
		t.Fatal("route should be stored under the default key")
	}

	got, ok, err := table.Lookup(ctx, "chat")
	if err != nil || !ok {
		t.Fatalf("Lookup() = %v, %v", ok, err)
	}
	if got.Hostname != "chat.internal" || got.Port != 3000 || !got.Allows(3001) {
		t.Errorf("Lookup() route = %+v", got)
	}

	if err := table.Delete(ctx, "chat"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := table.Lookup(ctx, "chat"); ok {
		t.Error("route should be gone after Delete")
	}
}

func TestTableLookupFillsName(t *testing.T) {
	client := newMockClient()
	client.hashes["custom"] = map[string]string{"feed": `{"hostname":"feed.internal","port":4000}`}
	table := NewTable(client, "custom")

	got, ok, err := table.Lookup(context.Background(), "feed")
	if err != nil || !ok {
		t.Fatalf("Lookup() = %v, %v", ok, err)
	}
	if got.Name != "feed" {
		t.Errorf("Name = %q, want feed", got.Name)
	}
}

func TestTableLookupErrors(t *testing.T) {
	ctx := context.Background()

	client := newMockClient()
	client.hashes[DefaultKey] = map[string]string{"bad": "{not json"}
	table := NewTable(client, "")
	if _, _, err := table.Lookup(ctx, "bad"); err == nil {
		t.Error("expected decode error")
	}

	boom := errors.New("connection reset")
	client.err = boom
	if _, _, err := table.Lookup(ctx, "bad"); !errors.Is(err, boom) {
		t.Errorf("expected client error, got %v", err)
	}
}

func TestTableClose(t *testing.T) {
	client := newMockClient()
	if err := NewTable(client, "").Close(); err != nil {
		t.Fatal(err)
	}
	if !client.closed {
		t.Error("client should be closed")
	}
}

func TestTableSync(t *testing.T) {
	ctx := context.Background()
	client := newMockClient()
	client.hashes[DefaultKey] = map[string]string{"other": `{"hostname":"other.internal","port":9000}`}
	table := NewTable(client, "")

	first := []routes.Route{
		{Name: "chat", Hostname: "chat.internal", Port: 3000},
		{Name: "feed", Hostname: "feed.internal", Port: 4000},
	}
	if err := table.Sync(ctx, nil, first); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(client.hashes[DefaultKey]) != 3 {
		t.Fatalf("hash has %d fields, want 3", len(client.hashes[DefaultKey]))
	}

	second := []routes.Route{{Name: "chat", Hostname: "chat2.internal", Port: 3000}}
	if err := table.Sync(ctx, first, second); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if _, ok, _ := table.Lookup(ctx, "feed"); ok {
		t.Error("route dropped from the list should be deleted")
	}
	if got, ok, _ := table.Lookup(ctx, "chat"); !ok || got.Hostname != "chat2.internal" {
		t.Errorf("chat = %+v, %v, want updated hostname", got, ok)
	}
	if _, ok, _ := table.Lookup(ctx, "other"); !ok {
		t.Error("routes stored by others must be kept")
	}
}

func TestTableSyncError(t *testing.T) {
	client := newMockClient()
	boom := errors.New("read only replica")
	client.err = boom

	err := NewTable(client, "").Sync(context.Background(), nil, []routes.Route{{Name: "chat", Hostname: "h", Port: 1}})
	if !errors.Is(err, boom) {
		t.Errorf("Sync() error = %v, want client error", err)
	}
}

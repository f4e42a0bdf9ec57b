package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"wsbridge/internal/routes"
)

// DefaultKey is the hash holding route definitions, one field per name
const DefaultKey = "wsbridge:routes"

// Client defines the Redis operations the table needs
type Client interface {
	// HGet returns the field value, or found=false when it does not exist
	HGet(ctx context.Context, key, field string) (value string, found bool, err error)
	// HSet stores the field value
	HSet(ctx context.Context, key, field, value string) error
	// HDel deletes the field
	HDel(ctx context.Context, key, field string) error
	// Close closes the connection
	Close() error
}

// ClientAdapter adapts a go-redis client to Client
type ClientAdapter struct {
	client redis.UniversalClient
}

// NewClientAdapter creates a new client adapter
func NewClientAdapter(client redis.UniversalClient) *ClientAdapter {
	return &ClientAdapter{client: client}
}

// HGet implements Client
func (c *ClientAdapter) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := c.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// HSet implements Client
func (c *ClientAdapter) HSet(ctx context.Context, key, field, value string) error {
	return c.client.HSet(ctx, key, field, value).Err()
}

// HDel implements Client
func (c *ClientAdapter) HDel(ctx context.Context, key, field string) error {
	return c.client.HDel(ctx, key, field).Err()
}

// Close implements Client
func (c *ClientAdapter) Close() error {
	return c.client.Close()
}

// Options configures a Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Dial connects to Redis and verifies the connection with a ping
func Dial(ctx context.Context, opts Options) (*Table, error) {
	rdb := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewTable(NewClientAdapter(rdb), opts.Key), nil
}

// Table is a routes.Table backed by a Redis hash of JSON encoded routes
type Table struct {
	client Client
	key    string
}

// NewTable creates a table reading from key (DefaultKey when empty)
func NewTable(client Client, key string) *Table {
	if key == "" {
		key = DefaultKey
	}
	return &Table{client: client, key: key}
}

// Lookup implements routes.Table
func (t *Table) Lookup(ctx context.Context, name string) (routes.Route, bool, error) {
	raw, found, err := t.client.HGet(ctx, t.key, name)
	if err != nil {
		return routes.Route{}, false, fmt.Errorf("redis lookup %s: %w", name, err)
	}
	if !found {
		return routes.Route{}, false, nil
	}

	var r routes.Route
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return routes.Route{}, false, fmt.Errorf("decode route %s: %w", name, err)
	}
	if r.Name == "" {
		r.Name = name
	}
	return r, true, nil
}

// Put stores a route
func (t *Table) Put(ctx context.Context, r routes.Route) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal route: %w", err)
	}
	if err := t.client.HSet(ctx, t.key, r.Name, string(data)); err != nil {
		return fmt.Errorf("redis set %s: %w", r.Name, err)
	}
	return nil
}

// Delete removes a route
func (t *Table) Delete(ctx context.Context, name string) error {
	if err := t.client.HDel(ctx, t.key, name); err != nil {
		return fmt.Errorf("redis delete %s: %w", name, err)
	}
	return nil
}

// Sync stores every route in next and deletes the routes of prev that next
// no longer names. Routes stored by others are left alone.
func (t *Table) Sync(ctx context.Context, prev, next []routes.Route) error {
	keep := make(map[string]bool, len(next))
	for _, r := range next {
		keep[r.Name] = true
		if err := t.Put(ctx, r); err != nil {
			return err
		}
	}
	for _, r := range prev {
		if keep[r.Name] {
			continue
		}
		if err := t.Delete(ctx, r.Name); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying client
func (t *Table) Close() error {
	return t.client.Close()
}

var _ routes.Table = (*Table)(nil)

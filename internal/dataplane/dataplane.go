// Package dataplane selects the concrete storage and messaging resources a
// request must use for its tenant.
//
// # Isolation Design
//
// Shared-mode tenants ride pooled infrastructure. Every connection borrowed
// from a shared pool is tagged with the tenant's id in its session before it
// is handed out, so the row-level-security policies on the hot and warm
// tables scope every statement. Isolated-mode tenants get a dedicated pool
// once their usage justifies it; until then they share the pooled hot tier
// under the same session discipline.
package dataplane

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plantops/sensor-pipeline/internal/store"
)

// Conn is a borrowed database connection. Release returns it to its pool;
// callers must release exactly once.
type Conn interface {
	store.Querier
	Release()
}

// PoolHandle hands out connections that are safe for one tenant's queries.
type PoolHandle interface {
	Acquire(ctx context.Context) (Conn, error)
}

// ObjectTarget is where a tenant's archive objects live.
type ObjectTarget struct {
	Bucket string
	Prefix string
}

// Key prepends the target's prefix to an object key.
func (t ObjectTarget) Key(key string) string {
	return t.Prefix + key
}

// StreamTopics is the tenant's topic layout on the event stream. Shared is
// empty for isolated tenants.
type StreamTopics struct {
	SensorData     string
	Alerts         string
	PriorityAlerts string
	Shared         string
}

// SinkConfig is the tenant's notification fan-out destinations.
type SinkConfig struct {
	NotificationTopics []string
	WebhookURLs        []string
}

// DataPlane is the full set of per-request resources for one tenant.
type DataPlane struct {
	TenantID string
	Hot      PoolHandle
	Warm     PoolHandle
	Object   ObjectTarget
	Topics   StreamTopics
	Sinks    SinkConfig
}

// pooledConn wraps a pgx connection so callers cannot use it after release.
type pooledConn struct {
	*pgxpool.Conn
}

func (c pooledConn) Release() { c.Conn.Release() }

// directHandle hands out untagged connections from a pool. Used for
// dedicated tenant pools, where the whole database belongs to one tenant.
type directHandle struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

func (h directHandle) Acquire(ctx context.Context) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, h.acquireTimeout)
	defer cancel()
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	return pooledConn{conn}, nil
}

// tenantHandle tags every borrowed connection with the tenant id before
// handing it out. Tagging on every acquisition means a connection last used
// by a different tenant is always re-tagged, never reused as-is.
type tenantHandle struct {
	inner    PoolHandle
	tenantID string
}

func (h tenantHandle) Acquire(ctx context.Context) (Conn, error) {
	conn, err := h.inner.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	// set_config with is_local=false pins the variable for the session;
	// the next borrower overwrites it before running anything.
	if _, err := conn.Exec(ctx, `SELECT set_config('app.current_tenant_id', $1, false)`, h.tenantID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("setting tenant session variable: %w", err)
	}
	return conn, nil
}

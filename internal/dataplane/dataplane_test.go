package dataplane

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type sessionConn struct {
	sql      []string
	args     [][]any
	execErr  error
	released bool
}

func (c *sessionConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.sql = append(c.sql, sql)
	c.args = append(c.args, args)
	if c.execErr != nil {
		return pgconn.CommandTag{}, c.execErr
	}
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (c *sessionConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *sessionConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (c *sessionConn) Release() { c.released = true }

type sessionHandle struct {
	conn       *sessionConn
	acquireErr error
}

func (h sessionHandle) Acquire(ctx context.Context) (Conn, error) {
	if h.acquireErr != nil {
		return nil, h.acquireErr
	}
	return h.conn, nil
}

func TestTenantHandleTagsEveryAcquire(t *testing.T) {
	conn := &sessionConn{}
	h := tenantHandle{inner: sessionHandle{conn: conn}, tenantID: "acme-corp"}

	for i := 0; i < 3; i++ {
		got, err := h.Acquire(context.Background())
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		got.Release()
	}

	if len(conn.sql) != 3 {
		t.Fatalf("session tagged %d times, want 3", len(conn.sql))
	}
	for i, sql := range conn.sql {
		if !strings.Contains(sql, "set_config('app.current_tenant_id'") {
			t.Errorf("acquire %d ran %q, want session tag", i, sql)
		}
		if len(conn.args[i]) != 1 || conn.args[i][0] != "acme-corp" {
			t.Errorf("acquire %d args = %v, want [acme-corp]", i, conn.args[i])
		}
	}
}

func TestTenantHandleReleasesOnTagFailure(t *testing.T) {
	conn := &sessionConn{execErr: errors.New("connection reset")}
	h := tenantHandle{inner: sessionHandle{conn: conn}, tenantID: "acme-corp"}

	if _, err := h.Acquire(context.Background()); err == nil {
		t.Fatal("expected tagging failure to surface")
	}
	if !conn.released {
		t.Error("connection leaked after tagging failure")
	}
}

func TestTenantHandlePropagatesAcquireError(t *testing.T) {
	h := tenantHandle{inner: sessionHandle{acquireErr: errors.New("pool exhausted")}, tenantID: "acme-corp"}
	if _, err := h.Acquire(context.Background()); err == nil {
		t.Fatal("expected acquire error")
	}
}

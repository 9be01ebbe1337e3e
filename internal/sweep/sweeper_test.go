package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/plantops/sensor-pipeline/internal/dataplane"
	"github.com/plantops/sensor-pipeline/internal/dispatch"
	"github.com/plantops/sensor-pipeline/internal/store"
	"github.com/plantops/sensor-pipeline/internal/testutil"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

type fakeDirectory struct {
	tenants map[string]*types.TenantContext
	listErr error
}

func (d *fakeDirectory) Lookup(ctx context.Context, tenantID string) (*types.TenantContext, error) {
	t, ok := d.tenants[tenantID]
	if !ok {
		return nil, errors.New("unknown tenant")
	}
	return t, nil
}

func (d *fakeDirectory) TenantIDs(ctx context.Context) ([]string, error) {
	if d.listErr != nil {
		return nil, d.listErr
	}
	ids := make([]string, 0, len(d.tenants))
	for id := range d.tenants {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeConn struct {
	released bool
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (c *fakeConn) Release() { c.released = true }

type fakeHandle struct {
	conn *fakeConn
}

func (h fakeHandle) Acquire(ctx context.Context) (dataplane.Conn, error) {
	return h.conn, nil
}

type fakeSelector struct {
	conn *fakeConn
}

func (s *fakeSelector) Select(ctx context.Context, tn *types.TenantContext) (*dataplane.DataPlane, error) {
	return &dataplane.DataPlane{
		TenantID: tn.TenantID,
		Warm:     fakeHandle{conn: s.conn},
		Topics: dataplane.StreamTopics{
			PriorityAlerts: "manufacturing-alerts-priority",
		},
	}, nil
}

type fakeMarker struct {
	mu        sync.Mutex
	marked    map[string][]types.EquipmentStatus
	silentFor time.Duration
	err       error
	calls     int
}

func (m *fakeMarker) MarkOffline(ctx context.Context, q store.Querier, silentFor time.Duration) ([]types.EquipmentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.silentFor = silentFor
	if m.err != nil {
		return nil, m.err
	}
	// One queue of results shared across tenants keeps the fixtures short.
	for id, statuses := range m.marked {
		delete(m.marked, id)
		return statuses, nil
	}
	return nil, nil
}

type fakeDispatcher struct {
	mu     sync.Mutex
	inputs []dispatch.Input
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, in dispatch.Input) dispatch.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputs = append(d.inputs, in)
	return dispatch.Outcome{Channels: map[string]bool{"priority_stream": true}}
}

type fakeInvalidator struct {
	patterns []string
	err      error
}

func (i *fakeInvalidator) DeletePattern(ctx context.Context, pattern string) error {
	i.patterns = append(i.patterns, pattern)
	return i.err
}

func newSweeper(dir *fakeDirectory, marker *fakeMarker, disp *fakeDispatcher, inv *fakeInvalidator) (*Sweeper, *fakeConn) {
	conn := &fakeConn{}
	cfg := Config{
		Directory:  dir,
		Selector:   &fakeSelector{conn: conn},
		Warm:       marker,
		Dispatcher: disp,
		SilentFor:  5 * time.Minute,
		Logger:     testutil.NewTestLogger(),
	}
	if inv != nil {
		cfg.Cache = inv
	}
	return New(cfg), conn
}

func TestSweepDispatchesOfflineAnomalies(t *testing.T) {
	lastSeen := time.Now().Add(-20 * time.Minute)
	dir := &fakeDirectory{tenants: map[string]*types.TenantContext{
		"acme-corp": testutil.FixtureTenant(),
	}}
	marker := &fakeMarker{marked: map[string][]types.EquipmentStatus{
		"acme-corp": {
			{EquipmentID: "PUMP_001", LastSeen: lastSeen, Status: types.EquipmentOffline},
			{EquipmentID: "FURNACE_003", LastSeen: lastSeen, Status: types.EquipmentOffline},
		},
	}}
	disp := &fakeDispatcher{}
	inv := &fakeInvalidator{}

	s, conn := newSweeper(dir, marker, disp, inv)
	s.runOnce(context.Background())

	if marker.silentFor != 5*time.Minute {
		t.Errorf("silence threshold = %v, want 5m", marker.silentFor)
	}
	if len(disp.inputs) != 2 {
		t.Fatalf("dispatched %d anomalies, want 2", len(disp.inputs))
	}
	for _, in := range disp.inputs {
		a := in.Anomaly
		if a.Kind != types.KindEquipmentOffline {
			t.Errorf("kind = %q, want equipment_offline", a.Kind)
		}
		if a.Severity != types.SeverityHigh {
			t.Errorf("severity = %q, want high", a.Severity)
		}
		if !a.Severity.Alertable() {
			t.Error("offline anomaly must be alertable")
		}
		if a.TenantID != "acme-corp" {
			t.Errorf("tenant = %q", a.TenantID)
		}
		if a.Value < (19 * time.Minute).Seconds() {
			t.Errorf("silence duration = %.0fs, want about 20 minutes", a.Value)
		}
		if a.Threshold != (5 * time.Minute).Seconds() {
			t.Errorf("threshold = %.0fs, want 300s", a.Threshold)
		}
		if in.Reading != nil {
			t.Error("offline dispatch carries no reading")
		}
		if in.Plane == nil || in.Plane.TenantID != "acme-corp" {
			t.Error("dispatch missing the tenant's data plane")
		}
	}

	if len(inv.patterns) != 1 || inv.patterns[0] != "equipment:acme-corp*" {
		t.Errorf("cache invalidation patterns = %v", inv.patterns)
	}
	if !conn.released {
		t.Error("warm connection leaked")
	}
}

func TestSweepQuietFleet(t *testing.T) {
	dir := &fakeDirectory{tenants: map[string]*types.TenantContext{
		"acme-corp": testutil.FixtureTenant(),
	}}
	marker := &fakeMarker{}
	disp := &fakeDispatcher{}
	inv := &fakeInvalidator{}

	s, conn := newSweeper(dir, marker, disp, inv)
	s.runOnce(context.Background())

	if len(disp.inputs) != 0 {
		t.Errorf("dispatched %d anomalies for a healthy fleet", len(disp.inputs))
	}
	if len(inv.patterns) != 0 {
		t.Error("cache invalidated with nothing marked")
	}
	if !conn.released {
		t.Error("warm connection leaked")
	}
}

func TestSweepCoversAllTenants(t *testing.T) {
	dir := &fakeDirectory{tenants: map[string]*types.TenantContext{
		"acme-corp": testutil.FixtureTenant(),
		"globex":    testutil.FixtureIsolatedTenant(),
	}}
	marker := &fakeMarker{}
	disp := &fakeDispatcher{}

	s, _ := newSweeper(dir, marker, disp, nil)
	s.runOnce(context.Background())

	if marker.calls != 2 {
		t.Errorf("swept %d tenants, want 2", marker.calls)
	}
}

func TestSweepEnumerationFailureSkipsPass(t *testing.T) {
	dir := &fakeDirectory{listErr: errors.New("directory unreachable")}
	marker := &fakeMarker{}

	s, _ := newSweeper(dir, marker, &fakeDispatcher{}, nil)
	s.runOnce(context.Background())

	if marker.calls != 0 {
		t.Error("swept tenants despite enumeration failure")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := &fakeDirectory{tenants: map[string]*types.TenantContext{}}
	s, _ := newSweeper(dir, &fakeMarker{}, &fakeDispatcher{}, nil)
	s.interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancellation")
	}
}

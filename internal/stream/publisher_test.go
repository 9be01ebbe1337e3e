package stream

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/plantops/sensor-pipeline/internal/testutil"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// testPublisher builds a publisher whose produce calls land in a slice
// instead of a broker connection.
func testPublisher(capacity int) (*Publisher, *recordedProduces) {
	recorded := &recordedProduces{}
	p := &Publisher{
		logger:  testutil.NewTestLogger(),
		queue:   make(chan *kgo.Record, capacity),
		closed:  make(chan struct{}),
		produce: recorded.produce,
	}
	p.wg.Add(1)
	go p.drain()
	return p, recorded
}

type recordedProduces struct {
	mu      sync.Mutex
	records []*kgo.Record
}

func (r *recordedProduces) produce(ctx context.Context, rec *kgo.Record, cb func(*kgo.Record, error)) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
	cb(rec, nil)
}

func (r *recordedProduces) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func TestEnqueueDrains(t *testing.T) {
	p, recorded := testPublisher(16)

	for i := 0; i < 5; i++ {
		if !p.Enqueue(&kgo.Record{Topic: "alerts-test"}) {
			t.Fatalf("enqueue %d rejected with capacity available", i)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for recorded.count() < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("drained %d records, want 5", recorded.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if p.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", p.Dropped())
	}
}

func TestEnqueueFailsClosedWhenFull(t *testing.T) {
	// Queue capacity 1 with a drain worker that never runs: replace
	// produce with one that blocks until released.
	release := make(chan struct{})
	p := &Publisher{
		logger: testutil.NewTestLogger(),
		queue:  make(chan *kgo.Record, 1),
		closed: make(chan struct{}),
		produce: func(ctx context.Context, rec *kgo.Record, cb func(*kgo.Record, error)) {
			<-release
			cb(rec, nil)
		},
	}
	p.wg.Add(1)
	go p.drain()
	defer close(release)

	// First record may be picked up by the worker; fill until rejection.
	accepted := 0
	rejected := false
	for i := 0; i < 10; i++ {
		if p.Enqueue(&kgo.Record{Topic: "alerts-test"}) {
			accepted++
		} else {
			rejected = true
			break
		}
	}
	if !rejected {
		t.Fatal("queue never rejected despite blocked worker")
	}
	if p.Dropped() == 0 {
		t.Error("dropped counter not incremented on rejection")
	}
}

func TestReadingRecord(t *testing.T) {
	r := testutil.FixtureReading(func(r *types.SensorReading) {
		r.HasAnomalies = true
		r.Anomalies = []types.Anomaly{{Severity: types.SeverityCritical, Kind: types.KindCriticalTemperature}}
	})

	rec, err := ReadingRecord("sensor-data-acme", r)
	if err != nil {
		t.Fatalf("ReadingRecord: %v", err)
	}
	if rec.Topic != "sensor-data-acme" {
		t.Errorf("topic = %s", rec.Topic)
	}
	if string(rec.Key) != r.EquipmentID {
		t.Errorf("key = %s, want %s", rec.Key, r.EquipmentID)
	}

	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers[HeaderSeverity] != string(types.SeverityCritical) {
		t.Errorf("severity header = %s, want critical", headers[HeaderSeverity])
	}
	if headers[HeaderEquipmentID] != r.EquipmentID {
		t.Errorf("equipment header = %s, want %s", headers[HeaderEquipmentID], r.EquipmentID)
	}

	var decoded types.SensorReading
	if err := json.Unmarshal(rec.Value, &decoded); err != nil {
		t.Fatalf("decoding record value: %v", err)
	}
	if decoded.EquipmentID != r.EquipmentID {
		t.Errorf("decoded equipment_id = %s", decoded.EquipmentID)
	}
}

func TestAlertRecordStampsPublishedAt(t *testing.T) {
	alert := &types.Alert{
		AlertID:     "a-1",
		EquipmentID: "FURNACE_003",
		Severity:    types.SeverityCritical,
		Kind:        types.KindCriticalTemperature,
		Timestamp:   time.Now().UTC(),
	}

	before := time.Now().UnixMilli()
	rec, err := AlertRecord("manufacturing-alerts-priority", alert)
	if err != nil {
		t.Fatalf("AlertRecord: %v", err)
	}
	after := time.Now().UnixMilli()

	var msg types.AlertMessage
	if err := json.Unmarshal(rec.Value, &msg); err != nil {
		t.Fatalf("decoding alert message: %v", err)
	}
	if msg.PublishedAt < before || msg.PublishedAt > after {
		t.Errorf("published_at = %d outside [%d, %d]", msg.PublishedAt, before, after)
	}
	if msg.AlertID != "a-1" {
		t.Errorf("alert_id = %s", msg.AlertID)
	}
}

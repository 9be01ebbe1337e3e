package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/plantops/sensor-pipeline/internal/dataplane"
	"github.com/plantops/sensor-pipeline/internal/stream"
	"github.com/plantops/sensor-pipeline/internal/testutil"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// fakePublisher records calls. PublishSync can be told to fail; Enqueue can
// be told the queue is full.
type fakePublisher struct {
	mu        sync.Mutex
	enqueued  []*kgo.Record
	published []*kgo.Record
	queueFull bool
	syncErr   error
}

func (f *fakePublisher) Enqueue(rec *kgo.Record) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queueFull {
		return false
	}
	f.enqueued = append(f.enqueued, rec)
	return true
}

func (f *fakePublisher) PublishSync(ctx context.Context, rec *kgo.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncErr != nil {
		return f.syncErr
	}
	f.published = append(f.published, rec)
	return nil
}

func (f *fakePublisher) publishedTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var topics []string
	for _, rec := range f.published {
		topics = append(topics, rec.Topic)
	}
	return topics
}

type fakeObserver struct {
	mu        sync.Mutex
	anomalies int
	alerts    int
}

func (f *fakeObserver) ObserveAnomaly(a *types.Anomaly) {
	f.mu.Lock()
	f.anomalies++
	f.mu.Unlock()
}

func (f *fakeObserver) ObserveAlert(tenantID string, severity types.Severity) {
	f.mu.Lock()
	f.alerts++
	f.mu.Unlock()
}

func testInput(overrides ...func(*Input)) Input {
	in := Input{
		Anomaly:      *testutil.FixtureAnomaly(),
		Reading:      testutil.FixtureCriticalReading(),
		Tenant:       testutil.FixtureTenant(),
		RequestStart: time.Now(),
		Plane: &dataplane.DataPlane{
			TenantID: "acme-corp",
			Topics: dataplane.StreamTopics{
				Alerts:         "alerts-acme-corp",
				PriorityAlerts: "priority-alerts",
			},
			Sinks: dataplane.SinkConfig{
				NotificationTopics: []string{"notify-acme-ops"},
			},
		},
	}
	for _, override := range overrides {
		override(&in)
	}
	return in
}

func TestCriticalAlertUsesFireAndForgetQueue(t *testing.T) {
	pub := &fakePublisher{}
	obs := &fakeObserver{}
	d := New(pub, obs, "", testutil.NewTestLogger())

	out := d.Dispatch(context.Background(), testInput())

	if !out.Channels["priority_stream"] {
		t.Error("priority_stream channel not marked delivered")
	}
	pub.mu.Lock()
	enqueued := len(pub.enqueued)
	pub.mu.Unlock()
	if enqueued != 1 {
		t.Fatalf("enqueued %d priority records, want 1", enqueued)
	}

	// The critical path must not go through the synchronous publish.
	for _, topic := range pub.publishedTopics() {
		if topic == "priority-alerts" {
			t.Error("critical alert used PublishSync instead of the queue")
		}
	}

	pub.mu.Lock()
	rec := pub.enqueued[0]
	pub.mu.Unlock()
	if rec.Topic != "priority-alerts" {
		t.Errorf("priority record topic = %q, want priority-alerts", rec.Topic)
	}

	var msg types.AlertMessage
	if err := json.Unmarshal(rec.Value, &msg); err != nil {
		t.Fatalf("decoding alert message: %v", err)
	}
	if msg.Kind != types.KindCriticalTemperature {
		t.Errorf("alert kind = %q, want critical_temperature", msg.Kind)
	}
	if msg.AlertID == "" {
		t.Error("alert has no ID")
	}
	if msg.PublishedAt == 0 {
		t.Error("alert message not stamped with PublishedAt")
	}
}

func TestHighAlertPublishesSynchronously(t *testing.T) {
	pub := &fakePublisher{}
	d := New(pub, &fakeObserver{}, "", testutil.NewTestLogger())

	in := testInput(func(in *Input) {
		in.Anomaly.Severity = types.SeverityHigh
		in.Anomaly.Kind = types.KindHighVibration
	})
	out := d.Dispatch(context.Background(), in)

	if !out.Channels["priority_stream"] {
		t.Error("priority_stream channel not marked delivered")
	}
	pub.mu.Lock()
	enqueued := len(pub.enqueued)
	pub.mu.Unlock()
	if enqueued != 0 {
		t.Error("high alert used the critical fire-and-forget queue")
	}

	found := false
	for _, topic := range pub.publishedTopics() {
		if topic == "priority-alerts" {
			found = true
		}
	}
	if !found {
		t.Error("high alert never published to the priority topic")
	}
}

func TestCriticalQueueFullReportedNotPropagated(t *testing.T) {
	pub := &fakePublisher{queueFull: true}
	d := New(pub, &fakeObserver{}, "", testutil.NewTestLogger())

	out := d.Dispatch(context.Background(), testInput())
	if out.Channels["priority_stream"] {
		t.Error("priority_stream marked delivered despite full queue")
	}
	if out.Alert == nil {
		t.Fatal("outcome carries no alert")
	}
}

func TestNotificationTopicsReceiveGuidance(t *testing.T) {
	pub := &fakePublisher{}
	d := New(pub, &fakeObserver{}, "https://dash.example.com/equipment/{equipment_id}", testutil.NewTestLogger())

	out := d.Dispatch(context.Background(), testInput())

	if !out.Channels["topic:notify-acme-ops"] {
		t.Fatalf("notification topic channel missing from outcome: %v", out.Channels)
	}

	var notification *types.Notification
	pub.mu.Lock()
	for _, rec := range pub.published {
		if rec.Topic == "notify-acme-ops" {
			notification = &types.Notification{}
			if err := json.Unmarshal(rec.Value, notification); err != nil {
				pub.mu.Unlock()
				t.Fatalf("decoding notification: %v", err)
			}
		}
	}
	pub.mu.Unlock()

	if notification == nil {
		t.Fatal("nothing published to notify-acme-ops")
	}
	if len(notification.RecommendedActions) == 0 {
		t.Error("notification has no recommended actions")
	}
	if notification.SensorDetails == nil || notification.SensorDetails.Value != 195.7 {
		t.Errorf("sensor details = %+v, want value 195.7", notification.SensorDetails)
	}
	if want := "https://dash.example.com/equipment/FURNACE_003"; notification.DashboardURL != want {
		t.Errorf("dashboard URL = %q, want %q", notification.DashboardURL, want)
	}
}

func TestWebhookDelivery(t *testing.T) {
	received := make(chan types.Notification, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n types.Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			t.Errorf("decoding webhook body: %v", err)
		}
		received <- n
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(&fakePublisher{}, nil, "", testutil.NewTestLogger())
	in := testInput(func(in *Input) {
		in.Plane.Sinks = dataplane.SinkConfig{WebhookURLs: []string{srv.URL}}
	})

	out := d.Dispatch(context.Background(), in)
	if !out.Channels["webhook:"+srv.URL] {
		t.Errorf("webhook channel not marked delivered: %v", out.Channels)
	}

	select {
	case n := <-received:
		if n.EquipmentID != "FURNACE_003" {
			t.Errorf("webhook equipment = %q, want FURNACE_003", n.EquipmentID)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook never received the notification")
	}
}

func TestWebhookFailureRecordedNotPropagated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(&fakePublisher{}, nil, "", testutil.NewTestLogger())
	in := testInput(func(in *Input) {
		in.Plane.Sinks = dataplane.SinkConfig{WebhookURLs: []string{srv.URL}}
	})

	out := d.Dispatch(context.Background(), in)
	if delivered, present := out.Channels["webhook:"+srv.URL]; !present || delivered {
		t.Errorf("failed webhook should be recorded as false, got %v", out.Channels)
	}
}

func TestTopicSinkFailureRecorded(t *testing.T) {
	pub := &fakePublisher{syncErr: errors.New("broker unreachable")}
	d := New(pub, nil, "", testutil.NewTestLogger())

	out := d.Dispatch(context.Background(), testInput())
	if delivered, present := out.Channels["topic:notify-acme-ops"]; !present || delivered {
		t.Errorf("failed topic sink should be recorded as false, got %v", out.Channels)
	}
}

func TestObserverReceivesAnomalyAndAlert(t *testing.T) {
	obs := &fakeObserver{}
	d := New(&fakePublisher{}, obs, "", testutil.NewTestLogger())

	out := d.Dispatch(context.Background(), testInput())
	if !out.Channels["metrics"] {
		t.Error("metrics channel not marked delivered")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.anomalies != 1 || obs.alerts != 1 {
		t.Errorf("observer saw %d anomalies and %d alerts, want 1 and 1", obs.anomalies, obs.alerts)
	}
}

func TestAlertCarriesProcessingLatency(t *testing.T) {
	d := New(&fakePublisher{}, nil, "", testutil.NewTestLogger())

	in := testInput(func(in *Input) {
		in.RequestStart = time.Now().Add(-25 * time.Millisecond)
	})
	out := d.Dispatch(context.Background(), in)

	if out.Alert.ProcessingLatencyMs < 25 {
		t.Errorf("processing latency = %.2fms, want at least 25ms", out.Alert.ProcessingLatencyMs)
	}
	if out.Alert.Acknowledged || out.Alert.Resolved {
		t.Error("new alert must start unacknowledged and unresolved")
	}
}

func TestRecommendedActionsCoverEveryKind(t *testing.T) {
	kinds := []types.AnomalyKind{
		types.KindCriticalTemperature,
		types.KindHighTemperature,
		types.KindCriticalVibration,
		types.KindHighVibration,
		types.KindCriticalPressure,
		types.KindAbnormalPressure,
		types.KindPowerSpike,
		types.KindEquipmentOffline,
	}
	for _, kind := range kinds {
		if len(actionsFor(kind)) == 0 {
			t.Errorf("kind %q has no recommended actions", kind)
		}
	}
}

func TestAlertRecordHeaders(t *testing.T) {
	alert := &types.Alert{
		AlertID:     "a-1",
		EquipmentID: "PUMP_001",
		Severity:    types.SeverityCritical,
		Kind:        types.KindCriticalPressure,
	}
	rec, err := stream.AlertRecord("priority-alerts", alert)
	if err != nil {
		t.Fatalf("building record: %v", err)
	}
	if string(rec.Key) != "PUMP_001" {
		t.Errorf("record key = %q, want equipment ID", rec.Key)
	}

	var severity string
	for _, h := range rec.Headers {
		if h.Key == stream.HeaderSeverity {
			severity = string(h.Value)
		}
	}
	if !strings.EqualFold(severity, "critical") {
		t.Errorf("severity header = %q, want critical", severity)
	}
}

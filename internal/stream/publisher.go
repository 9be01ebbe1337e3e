// Package stream publishes readings and alerts to the event stream.
//
// # Latency Design
//
// The producer is tuned for the ingest path, not for throughput: no linger,
// no batching, no compression, leader-only acks, idempotence off. Critical
// messages go through a bounded in-process queue drained by a dedicated
// worker, so the request path never waits on the broker; everything else is
// published synchronously under the caller's deadline.
package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Config for the process-wide publisher.
type Config struct {
	Brokers []string

	// QueueCapacity bounds the fire-and-forget queue. A full queue is the
	// only backpressure signal the ingest path sees.
	QueueCapacity int

	// TLS dials brokers over TLS. Required in production environments.
	TLS bool
}

// Publisher is the single shared producer for the process.
type Publisher struct {
	client *kgo.Client
	logger *slog.Logger

	queue chan *kgo.Record
	wg    sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}

	// produce is swappable for tests; defaults to client.Produce.
	produce func(ctx context.Context, rec *kgo.Record, cb func(*kgo.Record, error))

	mu      sync.Mutex
	dropped int64
}

// New connects the producer and starts the queue drain worker.
func New(cfg Config, logger *slog.Logger) (*Publisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.LeaderAck()),
		kgo.DisableIdempotentWrite(),
		kgo.ProducerLinger(0),
		kgo.ProducerBatchCompression(kgo.NoCompression()),
		kgo.MaxBufferedRecords(cfg.QueueCapacity * 2),
		kgo.AllowAutoTopicCreation(),
	}
	if cfg.TLS {
		opts = append(opts, kgo.DialTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating stream producer: %w", err)
	}

	p := &Publisher{
		client:  client,
		logger:  logger.With("component", "stream_publisher"),
		queue:   make(chan *kgo.Record, cfg.QueueCapacity),
		closed:  make(chan struct{}),
		produce: client.Produce,
	}
	p.wg.Add(1)
	go p.drain()
	return p, nil
}

// Enqueue hands a record to the background drain worker without blocking.
// Returns false when the queue is full; the record is dropped and counted.
func (p *Publisher) Enqueue(rec *kgo.Record) bool {
	select {
	case <-p.closed:
		return false
	default:
	}

	select {
	case p.queue <- rec:
		return true
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		p.logger.Warn("publish queue full, dropping record", "topic", rec.Topic)
		return false
	}
}

// PublishSync publishes one record and waits for the leader's ack, bounded
// by the caller's context deadline.
func (p *Publisher) PublishSync(ctx context.Context, rec *kgo.Record) error {
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("publishing to %s: %w", rec.Topic, err)
	}
	return nil
}

// drain moves queued records to the producer. Publish failures are logged;
// the queue is best-effort by contract.
func (p *Publisher) drain() {
	defer p.wg.Done()
	for rec := range p.queue {
		p.produce(context.Background(), rec, func(r *kgo.Record, err error) {
			if err != nil {
				p.logger.Error("async publish failed", "topic", r.Topic, "error", err)
			}
		})
	}
}

// Dropped reports how many records the bounded queue has rejected.
func (p *Publisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// QueueDepth reports how many records are waiting for the drain worker.
func (p *Publisher) QueueDepth() int {
	return len(p.queue)
}

// Close stops intake, drains the queue, flushes the producer's buffer, and
// closes the client connection.
func (p *Publisher) Close(ctx context.Context) {
	p.closeOnce.Do(func() {
		close(p.closed)
		close(p.queue)
		p.wg.Wait()

		if err := p.client.Flush(ctx); err != nil {
			p.logger.Warn("flush on close failed", "error", err)
		}
		p.client.Close()
	})
}

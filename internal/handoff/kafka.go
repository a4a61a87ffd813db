package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/medscrape/medcrawl/internal/model"
)

const (
	// DefaultTopic is the topic extraction jobs are published to.
	DefaultTopic = "content-extraction"

	// DefaultQueueSize is how many jobs may wait for the publisher.
	DefaultQueueSize = 1024

	// DefaultWriteTimeout bounds one publish call, including retries.
	DefaultWriteTimeout = 30 * time.Second

	// maxBatch is the most messages passed to one WriteMessages call.
	maxBatch = 100
)

var (
	// ErrQueueFull is returned by Submit when the publisher is behind.
	ErrQueueFull = errors.New("extraction queue full")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("hand-off closed")
)

// MessageWriter is the subset of *kafka.Writer used by KafkaHandoff.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaHandoff publishes extraction jobs to Kafka.
//
// Submit only encodes and queues the job; a single background publisher
// writes queued jobs in batches, so a slow or unreachable broker never
// holds up the caller. Publish failures are logged and counted (Failures).
// Close stops accepting jobs, flushes the queue and closes the writer.
type KafkaHandoff struct {
	writer       MessageWriter
	logger       *slog.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}

	failures atomic.Int64
}

// KafkaOption configures a KafkaHandoff.
type KafkaOption func(*KafkaHandoff)

// WithQueueSize sets the queue capacity. Values <= 0 are ignored.
func WithQueueSize(n int) KafkaOption {
	return func(k *KafkaHandoff) {
		if n > 0 {
			k.queue = make(chan kafka.Message, n)
		}
	}
}

// WithWriteTimeout bounds each publish call. Values <= 0 are ignored.
func WithWriteTimeout(d time.Duration) KafkaOption {
	return func(k *KafkaHandoff) {
		if d > 0 {
			k.writeTimeout = d
		}
	}
}

// WithKafkaLogger sets the logger for publish failures.
func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(k *KafkaHandoff) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// NewKafkaHandoff creates a producer for broker and topic.
// An empty topic uses DefaultTopic.
func NewKafkaHandoff(broker, topic string, opts ...KafkaOption) *KafkaHandoff {
	if topic == "" {
		topic = DefaultTopic
	}
	return NewKafkaHandoffWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: false,
	}, opts...)
}

// NewKafkaHandoffWithWriter builds a producer using a custom writer (tests).
func NewKafkaHandoffWithWriter(writer MessageWriter, opts ...KafkaOption) *KafkaHandoff {
	k := &KafkaHandoff{
		writer:       writer,
		logger:       slog.Default(),
		writeTimeout: DefaultWriteTimeout,
		queue:        make(chan kafka.Message, DefaultQueueSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(k)
	}

	go k.publish()
	return k
}

// Submit implements Handoff. It never waits for the broker.
func (k *KafkaHandoff) Submit(_ context.Context, job model.ExtractionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode extraction job: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(job.Domain),
		Value: payload,
		Time:  time.Now().UTC(),
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrClosed
	}
	select {
	case k.queue <- msg:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s", ErrQueueFull, job.URL)
	}
}

// Failures returns the number of jobs the broker did not accept.
func (k *KafkaHandoff) Failures() int64 {
	return k.failures.Load()
}

// Close flushes queued jobs and closes the underlying writer.
func (k *KafkaHandoff) Close() error {
	k.mu.Lock()
	if !k.closed {
		k.closed = true
		close(k.queue)
	}
	k.mu.Unlock()

	<-k.done
	return k.writer.Close()
}

// publish drains the queue until Close.
func (k *KafkaHandoff) publish() {
	defer close(k.done)

	batch := make([]kafka.Message, 0, maxBatch)
	for msg := range k.queue {
		batch = append(batch[:0], msg)
	fill:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-k.queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		k.write(batch)
	}
}

func (k *KafkaHandoff) write(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), k.writeTimeout)
	defer cancel()

	if err := k.writer.WriteMessages(ctx, batch...); err != nil {
		k.failures.Add(int64(len(batch)))
		k.logger.Warn("failed to publish extraction jobs",
			"count", len(batch),
			"domain", string(batch[0].Key),
			"error", err)
	}
}

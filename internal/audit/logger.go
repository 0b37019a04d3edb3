// Package audit buffers security and operational events and persists them
// in transactional batches so hot paths never wait on the database.
package audit

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"journal-core/pkg/db"
)

// Severity levels for audit events.
const (
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

// Common event types.
const (
	EventAccountCreated   = "account_created"
	EventAccountDeployed  = "account_deployed"
	EventAccountRemoved   = "account_removed"
	EventConnectionFailed = "connection_failed"
	EventRiskBreach       = "risk_breach"
	EventCredentialCheck  = "credential_check"
)

// Sink persists a batch of events atomically. *db.Queries satisfies it.
type Sink interface {
	InsertAuditEvents(ctx context.Context, events []db.AuditEvent) error
}

// Metrics exposes counters for the logger.
type Metrics struct {
	TotalEvents   uint64    `json:"total_events"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// Logger batches audit events and flushes them when the buffer reaches
// maxSize or the flush interval elapses, whichever comes first. Events that
// fail to persist are re-queued at the front so ordering is preserved.
type Logger struct {
	sink     Sink
	buffer   []db.AuditEvent
	mu       sync.Mutex
	maxSize  int
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	closed   bool
	metrics  Metrics
}

// NewLogger creates a logger flushing at maxSize events or every interval.
func NewLogger(sink Sink, maxSize int, interval time.Duration) *Logger {
	if maxSize <= 0 {
		maxSize = 100
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	l := &Logger{
		sink:     sink,
		buffer:   make([]db.AuditEvent, 0, maxSize),
		maxSize:  maxSize,
		interval: interval,
		done:     make(chan struct{}),
	}

	l.wg.Add(1)
	go l.backgroundFlush()

	return l
}

// Log queues an event. The ID and timestamp are assigned here so ordering
// survives a re-queue after a failed flush.
func (l *Logger) Log(eventType, severity, userID, accountID, metadata string) {
	ev := db.AuditEvent{
		ID:        uuid.New().String(),
		EventType: eventType,
		Severity:  severity,
		UserID:    userID,
		AccountID: accountID,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		log.Printf("⚠️ audit: dropping event after close: %s", eventType)
		return
	}
	l.buffer = append(l.buffer, ev)
	shouldFlush := len(l.buffer) >= l.maxSize
	l.mu.Unlock()

	atomic.AddUint64(&l.metrics.TotalEvents, 1)

	if shouldFlush {
		if err := l.Flush(); err != nil {
			log.Printf("⚠️ audit: size-triggered flush failed: %v", err)
		}
	}
}

// Info logs an INFO-severity event.
func (l *Logger) Info(eventType, userID, accountID, metadata string) {
	l.Log(eventType, SeverityInfo, userID, accountID, metadata)
}

// Warning logs a WARNING-severity event.
func (l *Logger) Warning(eventType, userID, accountID, metadata string) {
	l.Log(eventType, SeverityWarning, userID, accountID, metadata)
}

// Error logs an ERROR-severity event.
func (l *Logger) Error(eventType, userID, accountID, metadata string) {
	l.Log(eventType, SeverityError, userID, accountID, metadata)
}

// Flush persists all buffered events now. On failure the snapshot is placed
// back at the front of the buffer, ahead of anything queued meanwhile.
func (l *Logger) Flush() error {
	l.mu.Lock()
	if len(l.buffer) == 0 {
		l.mu.Unlock()
		return nil
	}
	batch := l.buffer
	l.buffer = make([]db.AuditEvent, 0, l.maxSize)
	l.mu.Unlock()

	if err := l.sink.InsertAuditEvents(context.Background(), batch); err != nil {
		atomic.AddUint64(&l.metrics.TotalErrors, 1)
		l.mu.Lock()
		l.buffer = append(batch, l.buffer...)
		l.mu.Unlock()
		return err
	}

	atomic.AddUint64(&l.metrics.TotalBatches, 1)
	l.mu.Lock()
	l.metrics.LastBatchSize = len(batch)
	l.metrics.LastFlushTime = time.Now()
	l.mu.Unlock()
	return nil
}

// Pending returns the number of buffered events.
func (l *Logger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}

// GetMetrics returns a snapshot of the logger counters.
func (l *Logger) GetMetrics() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Metrics{
		TotalEvents:   atomic.LoadUint64(&l.metrics.TotalEvents),
		TotalBatches:  atomic.LoadUint64(&l.metrics.TotalBatches),
		TotalErrors:   atomic.LoadUint64(&l.metrics.TotalErrors),
		LastBatchSize: l.metrics.LastBatchSize,
		LastFlushTime: l.metrics.LastFlushTime,
	}
}

func (l *Logger) backgroundFlush() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.Flush(); err != nil {
				log.Printf("⚠️ audit: background flush failed: %v", err)
			}
		case <-l.done:
			return
		}
	}
}

// Close stops the background flusher and forces a final flush.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.wg.Wait()
	return l.Flush()
}

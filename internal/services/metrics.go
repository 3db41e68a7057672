package services

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// Metrics tracks worker performance statistics
type Metrics struct {
	// Trigger / enqueue side
	MatchJobsEnqueued      atomic.Int64
	MessageJobsEnqueued    atomic.Int64
	ExternalJobsCreated    atomic.Int64
	DuplicateJobsDropped   atomic.Int64
	IdempotentReplays      atomic.Int64
	MuteSkips              atomic.Int64
	TriggerForegroundSkips atomic.Int64

	// Delivery side
	JobsSent                atomic.Int64
	PushesDelivered         atomic.Int64
	ForegroundShortCircuits atomic.Int64
	DebounceSkips           atomic.Int64
	StaleJobsExpired        atomic.Int64
	NoTokenFailures         atomic.Int64
	JobsRetried             atomic.Int64
	JobsPermanentlyFailed   atomic.Int64

	// Errors
	PushErrors      atomic.Int64
	RateLimitErrors atomic.Int64
	DatabaseErrors  atomic.Int64

	// Gateway traffic
	GatewayBatches atomic.Int64

	// Timing
	TotalPushProcessingTimeMs atomic.Int64
	StartTime                 time.Time
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime: time.Now(),
	}
}

// LogMetricsPeriodically logs metrics at regular intervals
func LogMetricsPeriodically(ctx context.Context, m *Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Log final metrics before shutdown
			LogMetrics(m)
			return
		case <-ticker.C:
			LogMetrics(m)
		}
	}
}

// LogMetrics outputs current metrics to the log
func LogMetrics(m *Metrics) {
	uptime := time.Since(m.StartTime)
	uptimeSeconds := uptime.Seconds()

	matchEnqueued := m.MatchJobsEnqueued.Load()
	messageEnqueued := m.MessageJobsEnqueued.Load()
	externalCreated := m.ExternalJobsCreated.Load()
	totalEnqueued := matchEnqueued + messageEnqueued + externalCreated

	jobsSent := m.JobsSent.Load()
	pushesDelivered := m.PushesDelivered.Load()
	retried := m.JobsRetried.Load()
	permanentFailures := m.JobsPermanentlyFailed.Load()

	pushErrors := m.PushErrors.Load()
	dbErrors := m.DatabaseErrors.Load()

	avgPushTime := float64(0)
	if pushesDelivered+pushErrors > 0 {
		avgPushTime = float64(m.TotalPushProcessingTimeMs.Load()) / float64(pushesDelivered+pushErrors)
	}

	throughput := float64(0)
	if uptimeSeconds > 0 {
		throughput = float64(jobsSent) / uptimeSeconds
	}

	log.Println("========== METRICS REPORT ==========")
	log.Printf("Uptime: %v", uptime.Round(time.Second))
	log.Printf("Jobs Enqueued: %d", totalEnqueued)
	log.Printf("  - Match: %d", matchEnqueued)
	log.Printf("  - Message: %d", messageEnqueued)
	log.Printf("  - External: %d", externalCreated)
	log.Printf("Suppressed (normal outcomes):")
	log.Printf("  - Idempotent Replays: %d", m.IdempotentReplays.Load())
	log.Printf("  - Enqueue Duplicates: %d", m.DuplicateJobsDropped.Load())
	log.Printf("  - Mute Skips: %d", m.MuteSkips.Load())
	log.Printf("  - Foreground (trigger): %d", m.TriggerForegroundSkips.Load())
	log.Printf("  - Foreground (delivery): %d", m.ForegroundShortCircuits.Load())
	log.Printf("  - Debounce Skips: %d", m.DebounceSkips.Load())
	log.Printf("Delivery:")
	log.Printf("  - Jobs Sent: %d (%.2f/sec)", jobsSent, throughput)
	log.Printf("  - Pushes Delivered: %d", pushesDelivered)
	log.Printf("  - Retries Scheduled: %d", retried)
	log.Printf("  - Permanent Failures: %d (stale: %d, no tokens: %d)",
		permanentFailures+m.StaleJobsExpired.Load()+m.NoTokenFailures.Load(),
		m.StaleJobsExpired.Load(), m.NoTokenFailures.Load())
	log.Printf("Errors:")
	log.Printf("  - Push Errors: %d", pushErrors)
	log.Printf("  - Rate Limit Errors: %d", m.RateLimitErrors.Load())
	log.Printf("  - Database Errors: %d", dbErrors)
	log.Printf("Gateway Traffic:")
	log.Printf("  - Batches Posted: %d", m.GatewayBatches.Load())
	log.Printf("Performance:")
	log.Printf("  - Avg Push Batch Time: %.2f ms", avgPushTime)
	log.Println("====================================")
}

package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"hooked-notifications-worker/internal/constants"
	"hooked-notifications-worker/internal/debounce"
	"hooked-notifications-worker/internal/models"
	"hooked-notifications-worker/internal/services"
)

// JobStore is what the worker needs from the document store.
type JobStore interface {
	LeaseQueuedJobs(ctx context.Context, limit int) ([]models.NotificationJob, error)
	MarkJobSent(ctx context.Context, id string)
	MarkJobFailedPermanently(ctx context.Context, id string, errMsg string)
	MarkJobFailedAndExhausted(ctx context.Context, id string, errMsg string)
	RequeueJobForRetry(ctx context.Context, id string, errMsg string)
	ReapExpiredLeases(ctx context.Context) error
	ActiveTokens(ctx context.Context, sessionId string) ([]string, error)
	IsForeground(ctx context.Context, sessionId string) bool
}

// PushGateway delivers a batch of push messages and reports one result per
// message, positionally.
type PushGateway interface {
	SendBatch(ctx context.Context, messages []models.PushMessage) ([]models.PushResult, error)
}

// Worker drains queued notification jobs on a fixed cadence and
// opportunistically right after an enqueue. Three deduplication layers meet
// here on purpose, not by accident: the idempotency ledger guards the logical
// event (trigger side), the 30s aggregation-key check guards the queue
// against flooding (enqueue side), and the 10s debounce cache guards against
// sending identical payloads (this side). They have different windows and
// keys because they answer different questions.
type Worker struct {
	store    JobStore
	gateway  PushGateway
	debounce *debounce.Cache
	metrics  *services.Metrics

	maxAttempts    int
	staleAfter     time.Duration
	drainBatchSize int

	kick chan struct{}
}

func New(store JobStore, gateway PushGateway, cache *debounce.Cache, metrics *services.Metrics,
	maxAttempts int, staleAfter time.Duration, drainBatchSize int) *Worker {
	return &Worker{
		store:          store,
		gateway:        gateway,
		debounce:       cache,
		metrics:        metrics,
		maxAttempts:    maxAttempts,
		staleAfter:     staleAfter,
		drainBatchSize: drainBatchSize,
		kick:           make(chan struct{}, 1),
	}
}

// Kick requests an opportunistic drain. Non-blocking; a drain already pending
// absorbs the request.
func (w *Worker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Run drains on the fixed interval and whenever kicked. Blocks until ctx is
// done.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Drain loop shutting down")
			return
		case <-ticker.C:
		case <-w.kick:
		}
		w.DrainCycle(ctx)
	}
}

// ReaperLoop periodically finds expired leases and returns them to the queue
func (w *Worker) ReaperLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("ReaperLoop shutting down")
			return
		case <-t.C:
			if err := w.store.ReapExpiredLeases(ctx); err != nil {
				log.Printf("reaper error: %v", err)
				w.metrics.DatabaseErrors.Add(1)
			}
		}
	}
}

// DrainCycle leases one batch of queued jobs (oldest first) and processes
// each independently to a terminal state or a counted retry.
func (w *Worker) DrainCycle(ctx context.Context) {
	jobs, err := w.store.LeaseQueuedJobs(ctx, w.drainBatchSize)
	if err != nil {
		log.Printf("Error leasing queued jobs: %v\n", err)
		w.metrics.DatabaseErrors.Add(1)
		return
	}
	if len(jobs) == 0 {
		return
	}
	log.Printf("Leased %d queued jobs\n", len(jobs))

	for _, job := range jobs {
		if ctx.Err() != nil {
			// Shutdown in progress - leases expire and the reaper requeues
			return
		}
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job models.NotificationJob) {
	// Staleness check comes first: a stuck job never earns a gateway call,
	// even with valid tokens and retry budget left
	if time.Since(job.CreatedAt) > w.staleAfter {
		w.store.MarkJobFailedPermanently(ctx, job.Id,
			fmt.Sprintf("job older than staleness cutoff (%s)", w.staleAfter))
		w.metrics.StaleJobsExpired.Add(1)
		log.Printf("Job %s expired stale (created %s)\n", job.Id, job.CreatedAt.Format(time.RFC3339))
		return
	}

	// Foreground short-circuit: the client renders the event itself
	if w.store.IsForeground(ctx, job.SubjectSessionId) {
		w.store.MarkJobSent(ctx, job.Id)
		w.metrics.ForegroundShortCircuits.Add(1)
		return
	}

	tokens, err := w.store.ActiveTokens(ctx, job.SubjectSessionId)
	if err != nil {
		// A transient store error counts against attempts the same as a
		// gateway rejection
		w.failJob(ctx, job, fmt.Sprintf("resolve tokens: %v", err))
		return
	}
	if len(tokens) == 0 {
		// Not retryable - more attempts will not produce tokens
		w.store.MarkJobFailedPermanently(ctx, job.Id, "no push tokens found")
		w.metrics.NoTokenFailures.Add(1)
		log.Printf("Job %s has no push tokens, permanent failure\n", job.Id)
		return
	}

	// Delivery-time debounce: identical content to the same recipient within
	// the window is a retry of the same send, not a new notification
	if w.debounce.ShouldSkip(job.SubjectSessionId, job.Type, job.ActorSessionId.String, debounceContent(job)) {
		w.store.MarkJobSent(ctx, job.Id)
		w.metrics.DebounceSkips.Add(1)
		log.Printf("Job %s suppressed by debounce cache\n", job.Id)
		return
	}

	messages := buildPushMessages(job, tokens)
	results, err := w.gateway.SendBatch(ctx, messages)
	if err != nil {
		w.failJob(ctx, job, fmt.Sprintf("push gateway: %v", err))
		return
	}

	for i, res := range results {
		if !res.Ok() {
			w.failJob(ctx, job, fmt.Sprintf("gateway rejected message %d: %s", i, res.Message))
			return
		}
	}

	w.store.MarkJobSent(ctx, job.Id)
	w.metrics.JobsSent.Add(1)
	w.metrics.PushesDelivered.Add(int64(len(messages)))
	log.Printf("Job SENT - ID: %s, Type: %s, Tokens: %d\n", job.Id, job.Type, len(tokens))
}

// failJob counts a delivery failure against the attempt budget: requeue while
// budget remains, permanent-failure on the final attempt. There is no
// explicit backoff beyond the drain cadence.
func (w *Worker) failJob(ctx context.Context, job models.NotificationJob, errMsg string) {
	w.metrics.PushErrors.Add(1)
	log.Printf("Job FAILED - ID: %s, Attempt: %d, Error: %s\n", job.Id, job.Attempts+1, errMsg)

	if job.Attempts+1 >= w.maxAttempts {
		w.store.MarkJobFailedAndExhausted(ctx, job.Id, errMsg)
		w.metrics.JobsPermanentlyFailed.Add(1)
		log.Printf("Max attempts exceeded for job %s - marking permanent failure\n", job.Id)
		return
	}
	w.store.RequeueJobForRetry(ctx, job.Id, errMsg)
	w.metrics.JobsRetried.Add(1)
}

// debounceContent is the identity the debounce cache compares: the rendered
// title and body. Two distinct messages always differ here because the body
// carries the content excerpt.
func debounceContent(job models.NotificationJob) string {
	return job.Title + "\n" + job.Body.String
}

func buildPushMessages(job models.NotificationJob, tokens []string) []models.PushMessage {
	channel := channelForType(job.Type)
	messages := make([]models.PushMessage, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, models.PushMessage{
			To:         token,
			Title:      job.Title,
			Body:       job.Body.String,
			Data:       job.Data,
			Sound:      "default",
			Priority:   "high",
			CollapseId: job.AggregationKey,
			ThreadId:   job.AggregationKey,
			ChannelId:  channel,
			Android:    &models.AndroidOverrides{ChannelId: channel, Priority: "high"},
			Ios:        &models.IosOverrides{Sound: "default", ThreadId: job.AggregationKey},
		})
	}
	return messages
}

func channelForType(jobType string) string {
	switch jobType {
	case constants.JobTypeMessage:
		return constants.AndroidChannelMessages
	case constants.JobTypeMatch:
		return constants.AndroidChannelMatches
	default:
		return constants.AndroidChannelDefault
	}
}

package integrations

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"hooked-notifications-worker/internal/config"
	"hooked-notifications-worker/internal/constants"
	"hooked-notifications-worker/internal/models"
	"hooked-notifications-worker/internal/services"
)

// Store is the SQL Server backed document store used by the trigger
// detectors and the delivery worker. All timestamps are server-assigned
// (GETUTCDATE) so clock skew between workers does not matter.
type Store struct {
	db      *sql.DB
	metrics *services.Metrics
}

func NewStore(db *sql.DB, metrics *services.Metrics) *Store {
	return &Store{db: db, metrics: metrics}
}

// ClaimIdempotencyKey attempts to create the ledger row for key. Returns true
// only for the caller that created it; false means some earlier caller
// already processed this logical event. Already-claimed is not an error.
func (s *Store) ClaimIdempotencyKey(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO IdempotencyLedger (IdemKey, CreatedAt)
		SELECT @p1, GETUTCDATE()
		WHERE NOT EXISTS (
			SELECT 1 FROM IdempotencyLedger WITH (UPDLOCK, HOLDLOCK) WHERE IdemKey = @p1
		)`, key)
	if err != nil {
		s.metrics.DatabaseErrors.Add(1)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		s.metrics.DatabaseErrors.Add(1)
		return false, err
	}
	return n == 1, nil
}

// EnqueueJob inserts a queued notification job unless a job with the same
// (AggregationKey, SubjectSessionId) was created within the dedup window.
// Returns false with a nil error on the duplicate path - dropping the job is
// a normal outcome, not a failure.
func (s *Store) EnqueueJob(ctx context.Context, job *models.NotificationJob) (bool, error) {
	var existing int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM NotificationJobs
		WHERE AggregationKey = @p1
			AND SubjectSessionId = @p2
			AND CreatedAt > DATEADD(SECOND, -@p3, GETUTCDATE())`,
		job.AggregationKey, job.SubjectSessionId, config.EnqueueDedupWindowSeconds).Scan(&existing)
	if err != nil {
		s.metrics.DatabaseErrors.Add(1)
		return false, err
	}
	if existing > 0 {
		log.Printf("Enqueue skipped (recent duplicate) key=%s subject=%s\n", job.AggregationKey, job.SubjectSessionId)
		return false, nil
	}

	if job.Id == "" {
		job.Id = uuid.New().String()
	}
	dataJson := sql.NullString{}
	if len(job.Data) > 0 {
		b, err := json.Marshal(job.Data)
		if err != nil {
			return false, err
		}
		dataJson = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO NotificationJobs
			(Id, Type, EventId, SubjectSessionId, ActorSessionId, Title, Body, DataJson,
			 AggregationKey, Attempts, Status, CreatedAt, UpdatedAt)
		VALUES
			(@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, @p9, 0, @p10, GETUTCDATE(), GETUTCDATE())`,
		job.Id, job.Type, job.EventId, job.SubjectSessionId, job.ActorSessionId,
		job.Title, job.Body, dataJson, job.AggregationKey, constants.JobStatusQueued)
	if err != nil {
		s.metrics.DatabaseErrors.Add(1)
		return false, err
	}
	return true, nil
}

// LeaseQueuedJobs claims up to limit queued jobs (oldest first) for this
// worker. The SELECT and the lease UPDATE run in one transaction with
// READPAST + UPDLOCK so two concurrent drain passes never claim the same row.
func (s *Store) LeaseQueuedJobs(ctx context.Context, limit int) ([]models.NotificationJob, error) {
	// Start an explicit transaction
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() // Rollback if we don't commit

	query := `
        SELECT TOP (@p1) Id, Type, EventId, SubjectSessionId, ActorSessionId, Title, Body,
               DataJson, AggregationKey, Attempts, CreatedAt
        FROM NotificationJobs WITH (ROWLOCK, READPAST, UPDLOCK)
        WHERE Status = @p2
        ORDER BY CreatedAt
    `

	rows, err := tx.QueryContext(ctx, query, limit, constants.JobStatusQueued)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.NotificationJob
	var ids []string

	for rows.Next() {
		var j models.NotificationJob
		var dataJson sql.NullString
		err := rows.Scan(&j.Id, &j.Type, &j.EventId, &j.SubjectSessionId, &j.ActorSessionId,
			&j.Title, &j.Body, &dataJson, &j.AggregationKey, &j.Attempts, &j.CreatedAt)
		if err != nil {
			return nil, err
		}
		if dataJson.Valid && dataJson.String != "" {
			if err := json.Unmarshal([]byte(dataJson.String), &j.Data); err != nil {
				log.Printf("job %s has malformed DataJson, delivering without data: %v", j.Id, err)
			}
		}
		j.Status = constants.JobStatusLeased
		list = append(list, j)
		ids = append(ids, j.Id)
	}
	rows.Close() // Close rows before executing update

	// Mark the claimed rows as leased so no other worker picks them up
	if len(ids) > 0 {
		placeholders := make([]string, 0, len(ids))
		args := []interface{}{constants.JobStatusLeased, config.WorkerId, config.LeaseSeconds}
		for i, id := range ids {
			placeholders = append(placeholders, fmt.Sprintf("@p%d", i+4))
			args = append(args, id)
		}

		updateQuery := fmt.Sprintf(`UPDATE NotificationJobs
			SET Status = @p1,
				LeasedBy = @p2,
				LeaseExpiresAt = DATEADD(SECOND, @p3, GETUTCDATE()),
				UpdatedAt = GETUTCDATE()
			WHERE Id IN (%s)`, strings.Join(placeholders, ","))

		if _, err = tx.ExecContext(ctx, updateQuery, args...); err != nil {
			return nil, err
		}
	}

	// Commit the transaction to release locks
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return list, nil
}

// MarkJobSent finalizes a leased job as sent. Conditioned on Status = 'leased'
// so a job the reaper already returned to the queue cannot be finished twice.
func (s *Store) MarkJobSent(ctx context.Context, id string) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE NotificationJobs
		SET Status = @p1,
			Error = NULL,
			LeasedBy = NULL,
			LeaseExpiresAt = NULL,
			UpdatedAt = GETUTCDATE()
		WHERE Id = @p2
			AND Status = @p3`,
		constants.JobStatusSent, id, constants.JobStatusLeased)

	if err != nil {
		log.Printf("mark sent err id=%s: %v", id, err)
		s.metrics.DatabaseErrors.Add(1)
	}
}

// MarkJobFailedPermanently finalizes a leased job without touching Attempts.
// Used for the non-retryable outcomes (stale job, no push tokens).
func (s *Store) MarkJobFailedPermanently(ctx context.Context, id string, errMsg string) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE NotificationJobs
		SET Status = @p1,
			Error = @p2,
			LeasedBy = NULL,
			LeaseExpiresAt = NULL,
			UpdatedAt = GETUTCDATE()
		WHERE Id = @p3
			AND Status = @p4`,
		constants.JobStatusPermanentFailure, errMsg, id, constants.JobStatusLeased)

	if err != nil {
		log.Printf("mark permanent failure err id=%s: %v", id, err)
		s.metrics.DatabaseErrors.Add(1)
	}
}

// MarkJobFailedAndExhausted records the final failed delivery attempt and
// moves the job to permanent-failure in one write.
func (s *Store) MarkJobFailedAndExhausted(ctx context.Context, id string, errMsg string) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE NotificationJobs
		SET Status = @p1,
			Attempts = Attempts + 1,
			Error = @p2,
			LeasedBy = NULL,
			LeaseExpiresAt = NULL,
			UpdatedAt = GETUTCDATE()
		WHERE Id = @p3
			AND Status = @p4`,
		constants.JobStatusPermanentFailure, errMsg, id, constants.JobStatusLeased)

	if err != nil {
		log.Printf("mark exhausted err id=%s: %v", id, err)
		s.metrics.DatabaseErrors.Add(1)
	}
}

// RequeueJobForRetry puts a leased job back in the queue with the attempt
// counted and the failure recorded. The next scheduled drain retries it.
func (s *Store) RequeueJobForRetry(ctx context.Context, id string, errMsg string) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE NotificationJobs
		SET Status = @p1,
			Attempts = Attempts + 1,
			Error = @p2,
			LeasedBy = NULL,
			LeaseExpiresAt = NULL,
			UpdatedAt = GETUTCDATE()
		WHERE Id = @p3
			AND Status = @p4`,
		constants.JobStatusQueued, errMsg, id, constants.JobStatusLeased)

	if err != nil {
		log.Printf("requeue err id=%s: %v", id, err)
		s.metrics.DatabaseErrors.Add(1)
	}
}

// ReapExpiredLeases returns jobs whose lease expired (worker died mid-cycle)
// to the queue. Attempts is left alone - an interrupted attempt is not a
// failed one.
func (s *Store) ReapExpiredLeases(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE NotificationJobs
		SET Status = @p1,
			LeasedBy = NULL,
			LeaseExpiresAt = NULL,
			UpdatedAt = GETUTCDATE()
		WHERE Status = @p2
			AND LeaseExpiresAt IS NOT NULL
			AND LeaseExpiresAt <= GETUTCDATE()`,
		constants.JobStatusQueued, constants.JobStatusLeased)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Printf("reaper: reset %d (to queued)\n", n)
	}

	return nil
}

// ActiveTokens returns up to 2 most-recently-updated unique push tokens for a
// session. A few extra rows are fetched so stale duplicates (reinstalls) do
// not crowd out a second distinct token.
func (s *Store) ActiveTokens(ctx context.Context, sessionId string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT TOP (8) Token
		FROM PushTokens
		WHERE SessionId = @p1
			AND IsActive = 1
		ORDER BY UpdatedAt DESC`, sessionId)
	if err != nil {
		s.metrics.DatabaseErrors.Add(1)
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
		if len(tokens) == 2 {
			break
		}
	}
	return tokens, rows.Err()
}

// IsForeground reports whether the session's app is in the foreground right
// now. A presence row older than the TTL is treated as background - presence
// is a perishable hint. Missing rows and read errors also report background,
// failing open toward sending the push.
func (s *Store) IsForeground(ctx context.Context, sessionId string) bool {
	var isForeground bool
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT IsForeground, UpdatedAt
		FROM AppPresence
		WHERE SessionId = @p1`, sessionId).Scan(&isForeground, &updatedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("presence read err session=%s: %v", sessionId, err)
			s.metrics.DatabaseErrors.Add(1)
		}
		return false
	}
	if !isForeground {
		return false
	}
	return time.Since(updatedAt) < time.Duration(config.PresenceTTLSeconds)*time.Second
}

// IsMuted reports whether muter has muted pushes originating from muted
// within the event. Callers treat a lookup error as "not muted".
func (s *Store) IsMuted(ctx context.Context, eventId, muterSessionId, mutedSessionId string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM MuteRecords
		WHERE EventId = @p1
			AND MuterSessionId = @p2
			AND MutedSessionId = @p3`,
		eventId, muterSessionId, mutedSessionId).Scan(&n)
	if err != nil {
		s.metrics.DatabaseErrors.Add(1)
		return false, err
	}
	return n > 0, nil
}

// ProfileSessionId resolves a profile's session id. Returns "" (no error)
// when the profile does not exist.
func (s *Store) ProfileSessionId(ctx context.Context, eventId, profileId string) (string, error) {
	var sessionId sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT TOP (1) SessionId
		FROM Profiles
		WHERE EventId = @p1
			AND ProfileId = @p2`, eventId, profileId).Scan(&sessionId)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		s.metrics.DatabaseErrors.Add(1)
		return "", err
	}
	return sessionId.String, nil
}

// ProfileDisplayName resolves a profile's display name. Returns "" (no error)
// when the profile does not exist.
func (s *Store) ProfileDisplayName(ctx context.Context, eventId, profileId string) (string, error) {
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT TOP (1) DisplayName
		FROM Profiles
		WHERE EventId = @p1
			AND ProfileId = @p2`, eventId, profileId).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		s.metrics.DatabaseErrors.Add(1)
		return "", err
	}
	return name.String, nil
}

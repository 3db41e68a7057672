package triggers

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"hooked-notifications-worker/internal/constants"
	"hooked-notifications-worker/internal/models"
)

const messageBodyMaxRunes = 80

// HandleMessageCreated fires when a message document is created. Each step is
// a potential early exit; only lookups degrade gracefully (a missing sender
// name becomes a placeholder, a failed mute check proceeds to notify) -
// suppressing a real message is worse than an extra push.
func (d *Detectors) HandleMessageCreated(ctx context.Context, msg models.MessageSnapshot) {
	// 1. Resolve the sender's display name - never block on this
	senderName := msg.SenderName
	if senderName == "" {
		name, err := d.store.ProfileDisplayName(ctx, msg.EventId, msg.FromProfileId)
		if err != nil {
			log.Printf("sender name lookup err profile=%s: %v", msg.FromProfileId, err)
		}
		senderName = name
	}
	if senderName == "" {
		senderName = constants.PlaceholderSenderName
	}

	// 2. At-most-once per message
	idemKey := fmt.Sprintf("%s:%s:%s", constants.IdemPrefixMessage, msg.EventId, msg.MessageId)
	claimed, err := d.store.ClaimIdempotencyKey(ctx, idemKey)
	if err != nil {
		log.Printf("message claim err key=%s: %v", idemKey, err)
		return
	}
	if !claimed {
		d.metrics.IdempotentReplays.Add(1)
		return
	}

	// 3. Self-message, defensive
	if msg.FromProfileId == msg.ToProfileId {
		return
	}

	// 4. Recipient session is required - no session, no push target
	recipientSession := msg.ToSessionId
	if recipientSession == "" {
		recipientSession, err = d.store.ProfileSessionId(ctx, msg.EventId, msg.ToProfileId)
		if err != nil {
			log.Printf("recipient session lookup err profile=%s: %v", msg.ToProfileId, err)
			return
		}
	}
	if recipientSession == "" {
		log.Printf("message %s has no resolvable recipient session, skipping\n", msg.MessageId)
		return
	}

	// 5. Sender session is best-effort; without it the mute check is skipped
	senderSession := msg.FromSessionId
	if senderSession == "" {
		senderSession, err = d.store.ProfileSessionId(ctx, msg.EventId, msg.FromProfileId)
		if err != nil {
			log.Printf("sender session lookup err profile=%s: %v", msg.FromProfileId, err)
			senderSession = ""
		}
	}
	if senderSession != "" && senderSession == recipientSession {
		return
	}

	// 6. Muted senders never produce pushes; a failed lookup proceeds
	if senderSession != "" {
		muted, err := d.store.IsMuted(ctx, msg.EventId, recipientSession, senderSession)
		if err != nil {
			log.Printf("mute check err event=%s: %v", msg.EventId, err)
		} else if muted {
			d.metrics.MuteSkips.Add(1)
			return
		}
	}

	// 7. A foregrounded client renders its own in-app notification
	if d.store.IsForeground(ctx, recipientSession) {
		d.metrics.TriggerForegroundSkips.Add(1)
		return
	}

	// 8. Enqueue, grouped per conversation rather than per message
	job := &models.NotificationJob{
		Type:             constants.JobTypeMessage,
		EventId:          msg.EventId,
		SubjectSessionId: recipientSession,
		Title:            "New message from " + senderName,
		Body:             sql.NullString{String: truncateRunes(msg.Content, messageBodyMaxRunes), Valid: true},
		Data: map[string]string{
			"type":           constants.JobTypeMessage,
			"eventId":        msg.EventId,
			"conversationId": msg.ToProfileId,
		},
		AggregationKey: fmt.Sprintf("message:%s:%s", msg.EventId, msg.ToProfileId),
	}
	if senderSession != "" {
		job.ActorSessionId = sql.NullString{String: senderSession, Valid: true}
		job.Data["partnerSessionId"] = senderSession
	}

	created, err := d.store.EnqueueJob(ctx, job)
	if err != nil {
		log.Printf("message enqueue err recipient=%s: %v", recipientSession, err)
		return
	}
	if !created {
		d.metrics.DuplicateJobsDropped.Add(1)
		return
	}
	d.metrics.MessageJobsEnqueued.Add(1)
	d.onEnqueue()
}

// truncateRunes cuts s to at most n runes without splitting a multi-byte
// character.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

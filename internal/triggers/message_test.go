package triggers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hooked-notifications-worker/internal/constants"
	"hooked-notifications-worker/internal/models"
)

func newMessage() models.MessageSnapshot {
	return models.MessageSnapshot{
		MessageId:     "m1",
		EventId:       "ev1",
		FromProfileId: "p1",
		ToProfileId:   "p2",
		FromSessionId: "s1",
		ToSessionId:   "s2",
		Content:       "hey, are you near the bar?",
		SenderName:    "Alice",
	}
}

func TestHandleMessageCreatedHappyPath(t *testing.T) {
	store := newFakeStore()
	d, metrics, kicks := newTestDetectors(store)

	d.HandleMessageCreated(context.Background(), newMessage())

	require.Len(t, store.enqueued, 1)
	job := store.enqueued[0]
	assert.Equal(t, constants.JobTypeMessage, job.Type)
	assert.Equal(t, "s2", job.SubjectSessionId)
	assert.Equal(t, "s1", job.ActorSessionId.String)
	assert.Equal(t, "New message from Alice", job.Title)
	assert.Equal(t, "hey, are you near the bar?", job.Body.String)
	assert.Equal(t, "message:ev1:p2", job.AggregationKey)
	assert.Equal(t, "p2", job.Data["conversationId"])
	assert.Equal(t, "s1", job.Data["partnerSessionId"])
	assert.Equal(t, int64(1), metrics.MessageJobsEnqueued.Load())
	assert.Equal(t, 1, *kicks)
}

func TestHandleMessageCreatedTruncatesBodyTo80Runes(t *testing.T) {
	store := newFakeStore()
	d, _, _ := newTestDetectors(store)

	msg := newMessage()
	msg.Content = strings.Repeat("é", 100)
	d.HandleMessageCreated(context.Background(), msg)

	require.Len(t, store.enqueued, 1)
	assert.Equal(t, strings.Repeat("é", 80), store.enqueued[0].Body.String)
}

func TestHandleMessageCreatedAtMostOnce(t *testing.T) {
	store := newFakeStore()
	d, metrics, _ := newTestDetectors(store)

	d.HandleMessageCreated(context.Background(), newMessage())
	d.HandleMessageCreated(context.Background(), newMessage())

	assert.Len(t, store.enqueued, 1)
	assert.Equal(t, int64(1), metrics.IdempotentReplays.Load())
	assert.True(t, store.claims["msg:ev1:m1"])
}

func TestHandleMessageCreatedMutedSenderProducesNothing(t *testing.T) {
	store := newFakeStore()
	store.muted["ev1|s2|s1"] = true
	d, metrics, _ := newTestDetectors(store)

	d.HandleMessageCreated(context.Background(), newMessage())

	assert.Empty(t, store.enqueued)
	assert.Equal(t, int64(1), metrics.MuteSkips.Load())
}

func TestHandleMessageCreatedMuteCheckFailsOpen(t *testing.T) {
	store := newFakeStore()
	store.muteErr = errBoom
	d, _, _ := newTestDetectors(store)

	// A broken mute lookup must not silently drop a real message
	d.HandleMessageCreated(context.Background(), newMessage())
	assert.Len(t, store.enqueued, 1)
}

func TestHandleMessageCreatedForegroundRecipientSkips(t *testing.T) {
	store := newFakeStore()
	store.foreground["s2"] = true
	d, metrics, _ := newTestDetectors(store)

	d.HandleMessageCreated(context.Background(), newMessage())

	assert.Empty(t, store.enqueued)
	assert.Equal(t, int64(1), metrics.TriggerForegroundSkips.Load())
}

func TestHandleMessageCreatedSelfMessage(t *testing.T) {
	store := newFakeStore()
	d, _, _ := newTestDetectors(store)

	msg := newMessage()
	msg.ToProfileId = msg.FromProfileId
	d.HandleMessageCreated(context.Background(), msg)
	assert.Empty(t, store.enqueued)
}

func TestHandleMessageCreatedResolvesRecipientSession(t *testing.T) {
	store := newFakeStore()
	store.sessions["ev1|p2"] = "s2-looked-up"
	d, _, _ := newTestDetectors(store)

	msg := newMessage()
	msg.ToSessionId = ""
	d.HandleMessageCreated(context.Background(), msg)

	require.Len(t, store.enqueued, 1)
	assert.Equal(t, "s2-looked-up", store.enqueued[0].SubjectSessionId)
}

func TestHandleMessageCreatedUnresolvableRecipientStops(t *testing.T) {
	store := newFakeStore()
	d, _, _ := newTestDetectors(store)

	msg := newMessage()
	msg.ToSessionId = ""
	d.HandleMessageCreated(context.Background(), msg)
	assert.Empty(t, store.enqueued)
}

func TestHandleMessageCreatedSenderNameFallsBackToPlaceholder(t *testing.T) {
	store := newFakeStore()
	store.nameErr = errBoom
	d, _, _ := newTestDetectors(store)

	msg := newMessage()
	msg.SenderName = ""
	d.HandleMessageCreated(context.Background(), msg)

	require.Len(t, store.enqueued, 1)
	assert.Equal(t, "New message from "+constants.PlaceholderSenderName, store.enqueued[0].Title)
}

func TestHandleMessageCreatedMissingSenderSessionSkipsMuteCheckOnly(t *testing.T) {
	store := newFakeStore()
	// Every sender is muted, but without a sender session the mute check
	// cannot run and the message still notifies
	store.muted["ev1|s2|s1"] = true
	d, _, _ := newTestDetectors(store)

	msg := newMessage()
	msg.FromSessionId = ""
	d.HandleMessageCreated(context.Background(), msg)

	require.Len(t, store.enqueued, 1)
	job := store.enqueued[0]
	assert.False(t, job.ActorSessionId.Valid)
	assert.NotContains(t, job.Data, "partnerSessionId")
}

func TestHandleMessageCreatedDuplicateAggregationKeyDrops(t *testing.T) {
	store := newFakeStore()
	d, metrics, _ := newTestDetectors(store)

	first := newMessage()
	second := newMessage()
	second.MessageId = "m2" // distinct logical event, same conversation
	d.HandleMessageCreated(context.Background(), first)
	d.HandleMessageCreated(context.Background(), second)

	assert.Len(t, store.enqueued, 1)
	assert.Equal(t, int64(1), metrics.DuplicateJobsDropped.Load())
}

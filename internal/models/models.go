package models

import (
	"database/sql"
	"time"
)

// NotificationJob is one unit of durable delivery work. Created by a trigger
// detector (or an external caller), mutated only by the delivery worker.
// Once Status is 'sent' or 'permanent-failure' the row is never touched again.
type NotificationJob struct {
	Id               string
	Type             string // message | match | like | generic
	EventId          string
	SubjectSessionId string // recipient
	ActorSessionId   sql.NullString
	Title            string
	Body             sql.NullString
	Data             map[string]string
	AggregationKey   string
	Attempts         int
	Status           string // queued | leased | sent | permanent-failure
	Error            sql.NullString
	LeasedBy         sql.NullString
	LeaseExpiresAt   sql.NullTime
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type PushToken struct {
	SessionId string
	Platform  string
	Token     string
	IsActive  bool
	UpdatedAt time.Time
}

// LikeSnapshot is the state of a like document on one side of a write.
type LikeSnapshot struct {
	EventId        string `json:"event_id"`
	LikerSessionId string `json:"liker_session_id"`
	LikedSessionId string `json:"liked_session_id"`
	IsMutual       bool   `json:"is_mutual"`
}

// MessageSnapshot is a newly created message document.
type MessageSnapshot struct {
	MessageId     string `json:"message_id"`
	EventId       string `json:"event_id"`
	FromProfileId string `json:"from_profile_id"`
	ToProfileId   string `json:"to_profile_id"`
	FromSessionId string `json:"from_session_id,omitempty"`
	ToSessionId   string `json:"to_session_id,omitempty"`
	Content       string `json:"content"`
	SenderName    string `json:"sender_name,omitempty"`
}

// PushMessage is one element of the gateway request array (max 100 per POST).
type PushMessage struct {
	To         string            `json:"to"`
	Title      string            `json:"title,omitempty"`
	Body       string            `json:"body,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	Sound      string            `json:"sound,omitempty"`
	Priority   string            `json:"priority,omitempty"`
	CollapseId string            `json:"collapseId,omitempty"`
	ThreadId   string            `json:"threadId,omitempty"`
	ChannelId  string            `json:"channelId,omitempty"`
	Android    *AndroidOverrides `json:"android,omitempty"`
	Ios        *IosOverrides     `json:"ios,omitempty"`
}

type AndroidOverrides struct {
	ChannelId string `json:"channelId,omitempty"`
	Priority  string `json:"priority,omitempty"`
}

type IosOverrides struct {
	Sound    string `json:"sound,omitempty"`
	ThreadId string `json:"threadId,omitempty"`
}

// PushResult reports the gateway outcome for the request message at the same
// index.
type PushResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (r PushResult) Ok() bool { return r.Status == "ok" }

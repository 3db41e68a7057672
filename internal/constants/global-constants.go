package constants

const (
	JobTypeMessage = "message"
	JobTypeMatch   = "match"
	JobTypeLike    = "like"
	JobTypeGeneric = "generic"

	JobStatusQueued           = "queued"
	JobStatusLeased           = "leased"
	JobStatusSent             = "sent"
	JobStatusPermanentFailure = "permanent-failure"

	AndroidChannelMessages = "messages"
	AndroidChannelMatches  = "matches"
	AndroidChannelDefault  = "default"

	IdemPrefixMatch   = "match"
	IdemPrefixMessage = "msg"

	PlaceholderSenderName = "Someone"
)

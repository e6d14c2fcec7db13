package constants

import "time"

// Discord constants
const (
	// DiscordMaxMessageLength is the maximum character limit for Discord messages
	DiscordMaxMessageLength = 2000

	// DiscordAnswerTimeout bounds one graph question asked from Discord
	DiscordAnswerTimeout = 3 * time.Minute
)

// Loader constants
const (
	// DefaultProgressEvery is how many lines pass between progress log lines
	DefaultProgressEvery = 10000
)

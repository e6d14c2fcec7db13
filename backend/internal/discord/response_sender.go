package discord

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"spoke-graph/backend/internal/constants"
)

// SendFunc posts one message to a channel
type SendFunc func(channelID, content string) error

// Part indicator format: "*(Part X/Y)*" is about 15 chars
const partIndicatorReserve = 20

// sendLongMessage splits a message into chunks if it exceeds Discord's character limit
func (h *Handler) sendLongMessage(send SendFunc, channelID, content string) {
	maxLength := constants.DiscordMaxMessageLength

	if utf8.RuneCountInString(content) <= maxLength {
		if err := send(channelID, content); err != nil {
			h.logger.Error("Failed to send message",
				zap.Error(err),
				zap.String("channel_id", channelID),
			)
		}
		return
	}

	chunks := splitMessage(content, maxLength-partIndicatorReserve)
	for i, chunk := range chunks {
		message := chunk
		if len(chunks) > 1 {
			message = chunk + "\n" + fmt.Sprintf("*(Part %d/%d)*", i+1, len(chunks))
		}

		if err := send(channelID, message); err != nil {
			h.logger.Error("Failed to send message chunk",
				zap.Error(err),
				zap.String("channel_id", channelID),
				zap.Int("chunk", i+1),
				zap.Int("total_chunks", len(chunks)),
			)
			break
		}

		// Brief pause between messages to stay under the rate limit
		if i < len(chunks)-1 && h.chunkDelay > 0 {
			time.Sleep(h.chunkDelay)
		}
	}
}

// splitMessage splits content into chunks of at most maxLength runes. Lines are kept
// whole where possible; a code block cut across chunks is closed and reopened.
func splitMessage(content string, maxLength int) []string {
	if utf8.RuneCountInString(content) <= maxLength {
		return []string{content}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0
	openFence := "" // opening marker of the code block in progress, e.g. "```cypher"

	flush := func() {
		if currentLen == 0 {
			return
		}
		text := current.String()
		if openFence != "" {
			text += "\n```"
		}
		chunks = append(chunks, text)
		current.Reset()
		currentLen = 0
		if openFence != "" {
			current.WriteString(openFence)
			currentLen = utf8.RuneCountInString(openFence)
		}
	}

	// Room needed to close a fence at the end of a chunk
	const fenceClose = len("\n```")

	appendLine := func(line string) {
		n := utf8.RuneCountInString(line)
		sep := 0
		if currentLen > 0 {
			sep = 1
		}
		budget := maxLength
		if openFence != "" {
			budget -= fenceClose
		}
		if currentLen > 0 && currentLen+sep+n > budget {
			flush()
			sep = 0
			if currentLen > 0 {
				sep = 1
			}
		}
		if sep == 1 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
		currentLen += sep + n
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		isFence := strings.HasPrefix(trimmed, "```")

		limit := maxLength
		if openFence != "" {
			limit = maxLength - len(openFence) - fenceClose - 1
		}
		if utf8.RuneCountInString(line) > limit && limit > 0 {
			for _, piece := range splitRunes(line, limit) {
				appendLine(piece)
			}
		} else {
			appendLine(line)
		}

		if isFence {
			if openFence == "" {
				openFence = trimmed
			} else {
				openFence = ""
			}
		}
	}

	if currentLen > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitRunes cuts s into pieces of at most n runes, preferring the last space
func splitRunes(s string, n int) []string {
	var pieces []string
	runes := []rune(s)
	for len(runes) > n {
		cut := n
		for i := n; i > n/2; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		pieces = append(pieces, string(runes[:cut]))
		runes = runes[cut:]
		if len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		pieces = append(pieces, string(runes))
	}
	return pieces
}

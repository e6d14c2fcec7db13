package discord

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"spoke-graph/backend/internal/chat"
	"spoke-graph/backend/internal/constants"
	apperrors "spoke-graph/backend/pkg/errors"
)

// GraphAsker answers questions against the graph
type GraphAsker interface {
	Ask(ctx context.Context, question string) (*chat.Answer, error)
}

// Handler handles Discord message processing
type Handler struct {
	qa         GraphAsker
	logger     *zap.Logger
	timeout    time.Duration
	chunkDelay time.Duration
}

// NewHandler creates a new Discord message handler
func NewHandler(qa GraphAsker, logger *zap.Logger) *Handler {
	return &Handler{
		qa:         qa,
		logger:     logger,
		timeout:    constants.DiscordAnswerTimeout,
		chunkDelay: 100 * time.Millisecond,
	}
}

// HandleMessage processes a Discord message
func (h *Handler) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s.State == nil || s.State.User == nil || m.Author == nil {
		return
	}
	botID := s.State.User.ID

	question, ok := extractQuestion(botID, m.Message)
	if !ok {
		return
	}

	// Show typing while the graph is queried
	if err := s.ChannelTyping(m.ChannelID); err != nil {
		h.logger.Debug("Failed to send typing indicator", zap.Error(err))
	}

	send := func(channelID, content string) error {
		_, err := s.ChannelMessageSend(channelID, content)
		return err
	}
	h.Respond(context.Background(), m.Message, question, send)
}

// Respond answers question and posts the reply to the message's channel
func (h *Handler) Respond(ctx context.Context, m *discordgo.Message, question string, send SendFunc) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.logger.Info("Processing Discord message",
		zap.String("user_id", m.Author.ID),
		zap.String("channel_id", m.ChannelID),
		zap.Bool("is_dm", m.GuildID == ""),
	)

	answer, err := h.qa.Ask(ctx, question)
	if err != nil {
		h.logger.Error("Failed to answer question",
			zap.String("channel_id", m.ChannelID),
			zap.Error(err),
		)
		h.sendLongMessage(send, m.ChannelID, userFacingError(err))
		return
	}

	h.sendLongMessage(send, m.ChannelID, FormatAnswer(answer))
}

// extractQuestion reports whether the bot should react to m and returns the
// message text with the bot's mention removed. Only DMs and mentions count.
func extractQuestion(botID string, m *discordgo.Message) (string, bool) {
	if m.Author == nil || m.Author.ID == botID || m.Author.Bot {
		return "", false
	}

	isDM := m.GuildID == ""
	isMentioned := false
	for _, mention := range m.Mentions {
		if mention.ID == botID {
			isMentioned = true
			break
		}
	}
	if !isDM && !isMentioned {
		return "", false
	}

	content := m.Content
	for _, tag := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
		content = strings.ReplaceAll(content, tag, "")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", false
	}
	return content, true
}

func userFacingError(err error) string {
	var unsafe *apperrors.ErrUnsafeQuery
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion):
		return "Please ask a question."
	case errors.As(err, &unsafe):
		return "I can only run read-only queries against the graph."
	case apperrors.IsErrorType(err, apperrors.ErrorTypeContext):
		return "That took too long to answer. Try a narrower question."
	case apperrors.IsErrorType(err, apperrors.ErrorTypeAgent):
		return "The language model is unavailable right now. Please try again later."
	default:
		return "Something went wrong while querying the graph."
	}
}

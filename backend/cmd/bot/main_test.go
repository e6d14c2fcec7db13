package main

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spoke-graph/backend/internal/chat"
	"spoke-graph/backend/pkg/config"
)

func TestNewSession_Intents(t *testing.T) {
	dg, err := newSession("test-token")
	require.NoError(t, err)

	assert.Equal(t, "Bot test-token", dg.Token)
	assert.NotZero(t, dg.Identify.Intents&discordgo.IntentsGuildMessages)
	assert.NotZero(t, dg.Identify.Intents&discordgo.IntentsDirectMessages)
	assert.Zero(t, dg.Identify.Intents&discordgo.IntentsGuildVoiceStates)
}

func TestAnswerCache_DisabledWithoutRedis(t *testing.T) {
	cache := answerCache(&config.Config{}, zap.NewNop())
	assert.IsType(t, chat.NoopCache{}, cache)
}

func TestAnswerCache_FallsBackWhenUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("dials a closed port")
	}
	cache := answerCache(&config.Config{RedisAddr: "127.0.0.1:1"}, zap.NewNop())
	assert.IsType(t, chat.NoopCache{}, cache)
}

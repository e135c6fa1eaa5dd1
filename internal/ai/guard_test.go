package ai_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/ayupilot/internal/ai"
	"github.com/kiranshivaraju/ayupilot/internal/ai/mock"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatRequest(msg string) models.GenerateRequest {
	return models.GenerateRequest{
		Kind:     models.JobChat,
		Messages: []models.Message{{Role: models.RoleUser, Content: msg}},
	}
}

func TestGuard_PassesThroughAndTrims(t *testing.T) {
	inner := &mock.MockProvider{
		Name_: "fake",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			return "  namaste \n", nil
		},
	}
	g := ai.Guard(inner, time.Second)

	out, err := g.Generate(context.Background(), chatRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "namaste", out)
	assert.Equal(t, "fake", g.Name())
}

func TestGuard_TimeoutMapsToSentinel(t *testing.T) {
	g := ai.Guard(mock.NewTimeoutProvider(), 20*time.Millisecond)

	_, err := g.Generate(context.Background(), chatRequest("hi"))
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}

func TestGuard_ProviderErrorIsUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	g := ai.Guard(mock.NewFailingProvider(cause), time.Second)

	_, err := g.Generate(context.Background(), chatRequest("hi"))
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestGuard_SentinelsPassThrough(t *testing.T) {
	g := ai.Guard(mock.NewFailingProvider(ai.ErrInvalidResponse), time.Second)

	_, err := g.Generate(context.Background(), chatRequest("hi"))
	assert.ErrorIs(t, err, ai.ErrInvalidResponse)
	assert.NotErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestGuard_EmptyReplyIsInvalid(t *testing.T) {
	inner := &mock.MockProvider{Name_: "blank"}
	g := ai.Guard(inner, time.Second)

	_, err := g.Generate(context.Background(), chatRequest("hi"))
	assert.ErrorIs(t, err, ai.ErrInvalidResponse)
}

func TestGuard_TruncatesLongReplies(t *testing.T) {
	long := strings.Repeat("é", 40*1024) // 80 KiB of two-byte runes
	inner := &mock.MockProvider{
		Name_: "verbose",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			return long, nil
		},
	}

	out, err := ai.Guard(inner, 0).Generate(context.Background(), chatRequest("hi"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 64*1024)
	assert.True(t, strings.HasPrefix(long, out))
	assert.True(t, len([]rune(out)) > 0)
}

func TestSentinelErrors(t *testing.T) {
	assert.NotEqual(t, ai.ErrProviderUnavailable, ai.ErrInferenceTimeout)
	assert.NotEqual(t, ai.ErrInferenceTimeout, ai.ErrInvalidResponse)
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// maxReplyBytes caps a single generated reply before it is persisted.
const maxReplyBytes = 64 * 1024

// Guarded wraps a provider with the inference timeout and maps its failures
// onto the package's sentinel errors.
type Guarded struct {
	inner   models.AIProvider
	timeout time.Duration
}

// Guard wraps p. A zero timeout leaves the caller's deadline in charge.
func Guard(p models.AIProvider, timeout time.Duration) *Guarded {
	return &Guarded{inner: p, timeout: timeout}
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out, err := g.inner.Generate(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInferenceTimeout), errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrInvalidResponse):
			return "", err
		case errors.Is(err, context.DeadlineExceeded):
			return "", fmt.Errorf("%w: %s after %s", ErrInferenceTimeout, g.inner.Name(), g.timeout)
		case errors.Is(err, context.Canceled):
			return "", err
		default:
			return "", fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, g.inner.Name(), err)
		}
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: %s returned an empty reply", ErrInvalidResponse, g.inner.Name())
	}
	return truncateString(out, maxReplyBytes), nil
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

var _ models.AIProvider = (*Guarded)(nil)

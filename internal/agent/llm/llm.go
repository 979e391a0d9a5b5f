// Package llm wraps chat-model invocation with the provider fault policy:
// transient provider errors (timeouts, rate limits, transport failures) are
// retried with exponential backoff, and whatever still fails is returned to
// the caller to be converted into workflow feedback. Provider failures are
// never process-fatal.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	logx "github.com/insight-core/server/pkg/logger"
)

const (
	maxAttempts     = 3
	initialInterval = 500 * time.Millisecond
)

// Generate invokes the chat model with bounded retries. The turn's context
// deadline still applies: once the context is done the retry loop stops
// immediately.
func Generate(ctx context.Context, cm model.BaseChatModel, messages []*schema.Message) (*schema.Message, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx)

	attempt := 0
	out, err := backoff.RetryWithData(func() (*schema.Message, error) {
		attempt++
		msg, genErr := cm.Generate(ctx, messages)
		if genErr != nil {
			if errors.Is(genErr, context.Canceled) || errors.Is(genErr, context.DeadlineExceeded) {
				return nil, backoff.Permanent(genErr)
			}
			logx.Warn().Err(genErr).Int("attempt", attempt).Msg("chat model call failed")
			return nil, genErr
		}
		return msg, nil
	}, policy)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("chat model returned empty response")
	}
	return out, nil
}

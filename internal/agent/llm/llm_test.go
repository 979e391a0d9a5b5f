package llm

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyModel struct {
	failures int
	err      error
	calls    int
}

func (f *flakyModel) Generate(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return nil, f.err
		}
		return nil, errors.New("transient provider fault")
	}
	return schema.AssistantMessage("ok", nil), nil
}

func (f *flakyModel) Stream(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func TestGenerate_RetriesTransientFaults(t *testing.T) {
	m := &flakyModel{failures: 1}

	out, err := Generate(context.Background(), m, []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Content)
	assert.Equal(t, 2, m.calls)
}

func TestGenerate_GivesUpAfterMaxAttempts(t *testing.T) {
	m := &flakyModel{failures: 100}

	_, err := Generate(context.Background(), m, []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.Equal(t, maxAttempts, m.calls)
}

func TestGenerate_ContextCancellationIsNotRetried(t *testing.T) {
	m := &flakyModel{failures: 100, err: context.Canceled}

	_, err := Generate(context.Background(), m, []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.calls)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Lllllllleong/docinsight/internal/apierr"
	"github.com/Lllllllleong/docinsight/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, b llm.Backend) *Gateway {
	t.Helper()
	g, err := NewGateway(b, GatewayConfig{PrimaryModel: "primary", FallbackModel: "fallback", Timeout: time.Second})
	require.NoError(t, err)
	return g
}

func TestGatewayUsesPrimary(t *testing.T) {
	b := &scriptedBackend{results: []backendResult{{text: "hello"}}}

	resp, err := newTestGateway(t, b).Complete(context.Background(), llm.Request{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, "primary", resp.Model)
	assert.Equal(t, 150, resp.TokensUsed())
	assert.Equal(t, []string{"primary"}, b.calls)
}

func TestGatewayFallsBackOnRateLimit(t *testing.T) {
	b := &scriptedBackend{results: []backendResult{
		{err: fmt.Errorf("429 from provider: %w", llm.ErrRateLimited)},
		{text: "from fallback"},
	}}
	req := llm.Request{System: "sys", Temperature: 0.2, TopP: 0.8, MaxTokens: 99, JSON: true}

	resp, err := newTestGateway(t, b).Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Text)
	assert.Equal(t, "fallback", resp.Model)
	assert.Equal(t, []string{"primary", "fallback"}, b.calls)
	assert.Equal(t, b.reqs[0], b.reqs[1])
}

func TestGatewayNoThirdAttempt(t *testing.T) {
	b := &scriptedBackend{results: []backendResult{
		{err: llm.ErrRateLimited},
		{err: llm.ErrRateLimited},
		{text: "never reached"},
	}}

	_, err := newTestGateway(t, b).Complete(context.Background(), llm.Request{})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeGenerationFailed))
	assert.ErrorIs(t, err, llm.ErrRateLimited)
	assert.Len(t, b.calls, 2)
}

func TestGatewayOtherErrorsDoNotFallBack(t *testing.T) {
	upstream := errors.New("invalid api key")
	b := &scriptedBackend{results: []backendResult{{err: upstream}, {text: "unused"}}}

	_, err := newTestGateway(t, b).Complete(context.Background(), llm.Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream)
	assert.True(t, apierr.Is(err, apierr.CodeGenerationFailed))
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Equal(t, []string{"primary"}, b.calls)
}

type slowBackend struct{}

func (slowBackend) Complete(ctx context.Context, _ string, _ llm.Request) (*llm.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGatewayTimeout(t *testing.T) {
	g, err := NewGateway(slowBackend{}, GatewayConfig{PrimaryModel: "p", FallbackModel: "f", Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = g.Complete(context.Background(), llm.Request{})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeGenerationTimeout))
}

func TestNewGatewayValidates(t *testing.T) {
	_, err := NewGateway(nil, GatewayConfig{PrimaryModel: "p", FallbackModel: "f"})
	assert.Error(t, err)
	_, err = NewGateway(&scriptedBackend{}, GatewayConfig{PrimaryModel: "p"})
	assert.Error(t, err)
}

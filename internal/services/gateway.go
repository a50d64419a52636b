package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/docinsight/internal/apierr"
	"github.com/Lllllllleong/docinsight/internal/llm"
)

type GatewayConfig struct {
	PrimaryModel  string
	FallbackModel string
	// Timeout bounds the whole call including the fallback hop.
	Timeout time.Duration
}

// Gateway sends completions to the primary model and, on a rate limit only,
// once to the fallback model.
type Gateway struct {
	backend llm.Backend
	config  GatewayConfig
}

func NewGateway(backend llm.Backend, config GatewayConfig) (*Gateway, error) {
	if backend == nil {
		return nil, fmt.Errorf("NewGateway: backend cannot be nil")
	}
	if config.PrimaryModel == "" || config.FallbackModel == "" {
		return nil, fmt.Errorf("NewGateway: primary and fallback models must be set")
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &Gateway{backend: backend, config: config}, nil
}

// Complete returns the first successful response. Response.Model names the
// model that produced it.
func (g *Gateway) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	logCtx := slog.With("model", g.config.PrimaryModel)
	resp, err := g.call(ctx, g.config.PrimaryModel, req)
	if errors.Is(err, llm.ErrRateLimited) {
		logCtx.Warn("Primary model rate limited, retrying on fallback.", "fallbackModel", g.config.FallbackModel)
		logCtx = slog.With("model", g.config.FallbackModel)
		resp, err = g.call(ctx, g.config.FallbackModel, req)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logCtx.Error("Completion timed out.", "timeout", g.config.Timeout.String(), "error", err)
			return nil, apierr.GenerationTimeout(err)
		}
		logCtx.Error("Completion failed.", "error", err)
		return nil, apierr.GenerationFailed(err)
	}
	return resp, nil
}

func (g *Gateway) call(ctx context.Context, model string, req llm.Request) (*llm.Response, error) {
	resp, err := g.backend.Complete(ctx, model, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("model %s returned no response", model)
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return resp, nil
}

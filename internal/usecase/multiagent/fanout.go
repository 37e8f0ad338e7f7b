package multiagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"energyscope/internal/domain"
	"energyscope/internal/infra/logger"
	"energyscope/internal/infra/tracer"
	"energyscope/internal/usecase/specialist"
)

// FanOut invokes the routed specialists concurrently and waits for all of
// them. A failing, slow or panicking specialist yields a zero-confidence
// result and never affects the others.
type FanOut struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// NewFanOut creates a FanOut. timeout bounds each specialist call; 0 disables it.
func NewFanOut(registry *Registry, timeout time.Duration, log *slog.Logger) *FanOut {
	return &FanOut{
		registry: registry,
		timeout:  timeout,
		logger:   logger.OrNop(log),
	}
}

// Run dispatches query to every named specialist in parallel. Results are in
// the order of names. If ctx is cancelled before all specialists finish, the
// partial results are discarded and ctx's error is returned.
func (f *FanOut) Run(ctx context.Context, names []string, query string, qctx domain.QueryContext) ([]domain.SpecialistResult, error) {
	results := make([]domain.SpecialistResult, len(names))
	g, gctx := errgroup.WithContext(ctx)

	for i, name := range names {
		g.Go(func() error {
			results[i] = f.invoke(gctx, name, query, qctx)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		f.logger.Info("fan-out cancelled, discarding results", "specialists", names, "error", err)
		return nil, err
	}
	return results, nil
}

func (f *FanOut) invoke(ctx context.Context, name, query string, qctx domain.QueryContext) domain.SpecialistResult {
	s, err := f.registry.Get(name)
	if err != nil {
		return domain.SpecialistResult{Name: name, DisplayName: name, Response: specialist.SoftFailure(name, err.Error())}
	}
	desc := s.Capabilities()
	result := domain.SpecialistResult{Name: name, DisplayName: desc.DisplayName}
	if result.DisplayName == "" {
		result.DisplayName = name
	}

	ctx, span := tracer.StartSpan(ctx, "specialist.process",
		trace.WithAttributes(tracer.StringAttr("specialist.name", name)))
	defer span.End()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan domain.AgentResponse, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				f.logger.Error("specialist panicked", "specialist", name, "panic", p)
				done <- specialist.SoftFailure(name, fmt.Sprintf("internal error: %v", p))
			}
		}()
		done <- s.Process(ctx, query, qctx)
	}()

	var resp domain.AgentResponse
	select {
	case resp = <-done:
	case <-ctx.Done():
		cause := ctx.Err()
		if errors.Is(cause, context.DeadlineExceeded) {
			cause = domain.NewSubSystemError("specialist", "FanOut.invoke", domain.ErrTimeout,
				fmt.Sprintf("%s exceeded %s", name, f.timeout))
		}
		resp = specialist.SoftFailure(name, cause.Error())
	}

	resp.Confidence = domain.ClampConfidence(resp.Confidence)
	if strings.TrimSpace(resp.Content) == "" {
		resp.Confidence = 0
	}
	result.Response = resp

	span.SetAttributes(
		tracer.FloatAttr("specialist.confidence", resp.Confidence),
		tracer.IntAttr("specialist.sources", len(resp.DataSources)),
	)
	if resp.Confidence == 0 {
		span.SetAttributes(tracer.StringAttr("specialist.failure", resp.Reasoning))
		f.logger.Warn("specialist failed softly", "specialist", name, "cause", resp.Reasoning,
			"duration", time.Since(start))
	} else {
		tracer.SetOK(span)
		f.logger.Debug("specialist completed", "specialist", name, "confidence", resp.Confidence,
			"duration", time.Since(start))
	}
	return result
}

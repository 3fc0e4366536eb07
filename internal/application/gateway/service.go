// Package gateway invokes certificate functions by name, the way a client
// submits or evaluates a transaction against the ledger.
package gateway

import (
	"context"
	"errors"
	"time"

	"greencredits-ledger/internal/application/certificates"
	"greencredits-ledger/internal/domain"
	"greencredits-ledger/internal/metrics"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 20 * time.Millisecond
)

// Service resubmits mutations that lose a read conflict.
type Service struct {
	Certificates *certificates.Service
	Metrics      *metrics.LedgerMetrics
	MaxRetries   uint64
	BaseDelay    time.Duration
}

// Submit runs a mutating function, retrying on ConflictRetryable with
// jittered exponential backoff.
func (s *Service) Submit(ctx context.Context, function string, args []string) (any, error) {
	fn, err := certificates.Lookup(function)
	if err != nil {
		return nil, err
	}
	if !fn.Mutating {
		return nil, domain.Newf(domain.KindInvalidArgument, "%s is a query, evaluate it instead", function)
	}

	start := time.Now()
	attempt := 0
	out, err := retry.DoValue(ctx, s.backoff(), func(ctx context.Context) (any, error) {
		attempt++
		if attempt > 1 {
			s.Metrics.IncRetry(function)
			log.Debug().Str("function", function).Int("attempt", attempt).Msg("Resubmitting after conflict")
		}
		out, err := s.Certificates.Invoke(ctx, function, args)
		if errors.Is(err, domain.ErrConflictRetryable) {
			return nil, retry.RetryableError(err)
		}
		return out, err
	})
	s.Metrics.ObserveTransaction(function, outcome(err, metrics.OutcomeCommitted), time.Since(start))
	if err != nil {
		if errors.Is(err, domain.ErrConflictRetryable) {
			log.Warn().Str("function", function).Int("attempts", attempt).Msg("Giving up after repeated conflicts")
		}
		return nil, err
	}
	return out, nil
}

// Evaluate runs a query function. Mutating functions are refused.
func (s *Service) Evaluate(ctx context.Context, function string, args []string) (any, error) {
	fn, err := certificates.Lookup(function)
	if err != nil {
		return nil, err
	}
	if fn.Mutating {
		return nil, domain.Newf(domain.KindInvalidArgument, "%s changes the ledger, submit it instead", function)
	}
	start := time.Now()
	out, err := s.Certificates.Invoke(ctx, function, args)
	s.Metrics.ObserveTransaction(function, outcome(err, metrics.OutcomeEvaluated), time.Since(start))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) backoff() retry.Backoff {
	base := s.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(time.Second, b)
	return retry.WithMaxRetries(s.MaxRetries, b)
}

func outcome(err error, success string) string {
	switch {
	case err == nil:
		return success
	case errors.Is(err, domain.ErrConflictRetryable):
		return metrics.OutcomeConflict
	case domain.KindOf(err) == domain.KindInternal:
		return metrics.OutcomeError
	default:
		return metrics.OutcomeRejected
	}
}

package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/windfall/speech_portal/internal/errors"
	"github.com/windfall/speech_portal/internal/metrics"
	"github.com/windfall/speech_portal/internal/repository"
	"github.com/windfall/speech_portal/internal/usage"
)

// UsagePublisher fans recorded events out to other systems.
type UsagePublisher interface {
	PublishUsage(ctx context.Context, event usage.Event) error
}

// UsageSummary is the monthly view: limits, used and remaining per kind.
type UsageSummary struct {
	MonthKey  string       `json:"month_key"`
	Limits    usage.Totals `json:"limits"`
	Used      usage.Totals `json:"used"`
	Remaining usage.Totals `json:"remaining"`
}

// UsageOverview is the dashboard view.
type UsageOverview struct {
	MonthKey  string       `json:"month_key"`
	Today     usage.Totals `json:"today"`
	Month     usage.Totals `json:"month"`
	AllTime   usage.Totals `json:"all_time"`
	Limits    usage.Totals `json:"limits"`
	Remaining usage.Totals `json:"remaining"`
	Degraded  bool         `json:"degraded,omitempty"`
}

// UsageService meters vendor consumption and derives period totals.
type UsageService struct {
	repo      repository.UsageRepository
	limits    usage.Limits
	clock     Clock
	publisher UsagePublisher
	log       zerolog.Logger
}

// NewUsageService creates a new UsageService.
func NewUsageService(repo repository.UsageRepository, limits usage.Limits, log zerolog.Logger) *UsageService {
	return &UsageService{
		repo:   repo,
		limits: limits,
		clock:  RealClock{},
		log:    log.With().Str("component", "usage").Logger(),
	}
}

// WithClock replaces the wall clock.
func (s *UsageService) WithClock(c Clock) *UsageService {
	s.clock = c
	return s
}

// WithPublisher fans every recorded event out to p.
func (s *UsageService) WithPublisher(p UsagePublisher) *UsageService {
	s.publisher = p
	return s
}

// Limits returns the configured monthly limits.
func (s *UsageService) Limits() usage.Limits {
	return s.limits
}

// Record appends one event stamped with the current time. Amounts <= 0 are
// ignored.
func (s *UsageService) Record(ctx context.Context, kind usage.Kind, amount int64) error {
	if !kind.Valid() {
		return errors.Validation("unknown usage kind: " + string(kind))
	}
	if amount <= 0 {
		return nil
	}
	if s.repo == nil {
		return errors.New(errors.ErrUsageStore, "usage store unavailable")
	}

	event := usage.Event{Timestamp: s.clock.Now().UTC(), Kind: kind, Amount: amount}
	if err := s.repo.Record(ctx, event); err != nil {
		return errors.Wrap(errors.ErrUsageStore, "failed to record usage", err)
	}
	metrics.UsageAmountTotal.WithLabelValues(string(kind)).Add(float64(amount))

	if s.publisher != nil {
		if err := s.publisher.PublishUsage(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to publish usage event")
		}
	}
	return nil
}

// Totals sums every kind over [from, to). Zero bounds are open.
func (s *UsageService) Totals(ctx context.Context, from, to time.Time) (usage.Totals, error) {
	if s.repo == nil {
		return nil, errors.New(errors.ErrUsageStore, "usage store unavailable")
	}
	totals, err := s.repo.Totals(ctx, from, to)
	if err != nil {
		return nil, errors.Wrap(errors.ErrUsageStore, "failed to query usage", err)
	}
	return totals, nil
}

// Today returns totals for the current UTC day.
func (s *UsageService) Today(ctx context.Context) (usage.Totals, error) {
	start, end := usage.DayRange(s.clock.Now())
	return s.Totals(ctx, start, end)
}

// Month returns totals for monthKey (YYYY-MM), or the current month when empty.
func (s *UsageService) Month(ctx context.Context, monthKey string) (usage.Totals, error) {
	if monthKey == "" {
		monthKey = usage.MonthKey(s.clock.Now())
	}
	start, end, err := usage.MonthRange(monthKey)
	if err != nil {
		return nil, errors.Validation(err.Error())
	}
	return s.Totals(ctx, start, end)
}

// AllTime returns totals over every recorded event.
func (s *UsageService) AllTime(ctx context.Context) (usage.Totals, error) {
	return s.Totals(ctx, time.Time{}, time.Time{})
}

// Summary returns limits, used and remaining for monthKey (current month when empty).
func (s *UsageService) Summary(ctx context.Context, monthKey string) (*UsageSummary, error) {
	if monthKey == "" {
		monthKey = usage.MonthKey(s.clock.Now())
	}
	used, err := s.Month(ctx, monthKey)
	if err != nil {
		return nil, err
	}
	return &UsageSummary{
		MonthKey:  monthKey,
		Limits:    s.limits.ToTotals(),
		Used:      used,
		Remaining: usage.Remaining(s.limits, used),
	}, nil
}

// Overview returns today, this month and all-time totals with the limits.
func (s *UsageService) Overview(ctx context.Context) (*UsageOverview, error) {
	now := s.clock.Now()
	monthKey := usage.MonthKey(now)

	today, err := s.Today(ctx)
	if err != nil {
		return nil, err
	}
	month, err := s.Month(ctx, monthKey)
	if err != nil {
		return nil, err
	}
	allTime, err := s.AllTime(ctx)
	if err != nil {
		return nil, err
	}

	return &UsageOverview{
		MonthKey:  monthKey,
		Today:     today,
		Month:     month,
		AllTime:   allTime,
		Limits:    s.limits.ToTotals(),
		Remaining: usage.Remaining(s.limits, month),
	}, nil
}

// FallbackOverview is served when the store cannot be read: zero usage
// against the configured limits.
func (s *UsageService) FallbackOverview() *UsageOverview {
	return &UsageOverview{
		MonthKey:  usage.MonthKey(s.clock.Now()),
		Today:     usage.NewTotals(),
		Month:     usage.NewTotals(),
		AllTime:   usage.NewTotals(),
		Limits:    s.limits.ToTotals(),
		Remaining: s.limits.ToTotals(),
		Degraded:  true,
	}
}

// Ping checks the usage store.
func (s *UsageService) Ping(ctx context.Context) error {
	if s.repo == nil {
		return errors.New(errors.ErrUsageStore, "usage store unavailable")
	}
	return s.repo.Ping(ctx)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/docinsight/internal/apierr"
	"github.com/Lllllllleong/docinsight/internal/models"
)

type Action string

const (
	ActionUploadDocument Action = "upload_document"
	ActionAskQuestion    Action = "ask_question"
)

const mb = 1024 * 1024

// DefaultTierLimits is the built-in quota table.
func DefaultTierLimits() map[models.Tier]models.TierLimits {
	return map[models.Tier]models.TierLimits{
		models.TierFree: {
			DocumentsPerDay:    3,
			MaxPagesPerDoc:     20,
			MaxFileSizeBytes:   5 * mb,
			QuestionsPerPeriod: 0,
			LibrarySize:        10,
			APICallsPerPeriod:  0,
		},
		models.TierStarter: {
			DocumentsPerDay:    10,
			MaxPagesPerDoc:     100,
			MaxFileSizeBytes:   25 * mb,
			QuestionsPerPeriod: 100,
			LibrarySize:        100,
			APICallsPerPeriod:  0,
		},
		models.TierPro: {
			DocumentsPerDay:    models.Unlimited,
			MaxPagesPerDoc:     500,
			MaxFileSizeBytes:   100 * mb,
			QuestionsPerPeriod: 1000,
			LibrarySize:        1000,
			APICallsPerPeriod:  1000,
		},
		models.TierTeam: {
			DocumentsPerDay:    models.Unlimited,
			MaxPagesPerDoc:     1000,
			MaxFileSizeBytes:   250 * mb,
			QuestionsPerPeriod: 5000,
			LibrarySize:        models.Unlimited,
			APICallsPerPeriod:  10000,
		},
	}
}

// ActionContext carries the facts an upload-class check needs.
type ActionContext struct {
	PageCount int
	FileSize  int64
	// Stored is the document under consideration when it is already saved. It
	// is excluded from the library total, and from the daily total if it was
	// created today.
	Stored *models.Document
}

// Decision is the outcome of a limit check. A denied decision always has a
// reason and message; Limit is -1 when no concrete quota applies.
type Decision struct {
	Allowed bool
	Reason  apierr.LimitReason
	Message string
	Limit   int64
}

// Err converts a denied decision into a usage_limit_exceeded error.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apierr.UsageLimit(d.Reason, d.Message, d.Limit)
}

func allow() Decision { return Decision{Allowed: true, Limit: -1} }

func deny(reason apierr.LimitReason, limit int64, format string, args ...any) Decision {
	return Decision{Reason: reason, Limit: limit, Message: fmt.Sprintf(format, args...)}
}

// UsageGate decides whether a user may perform a gated action and records
// usage after it succeeds.
type UsageGate struct {
	usage  UsageStore
	docs   DocumentStore
	limits map[models.Tier]models.TierLimits
	now    func() time.Time
}

func NewUsageGate(usage UsageStore, docs DocumentStore, limits map[models.Tier]models.TierLimits) *UsageGate {
	if limits == nil {
		limits = DefaultTierLimits()
	}
	return &UsageGate{usage: usage, docs: docs, limits: limits, now: time.Now}
}

// Limits returns the table row for tier. Unknown tiers get the free limits.
func (g *UsageGate) Limits(tier models.Tier) models.TierLimits {
	if l, ok := g.limits[tier]; ok {
		return l
	}
	return g.limits[models.TierFree]
}

// CheckLimit is read-only. It fails closed when the user has no usage period
// for the current month.
func (g *UsageGate) CheckLimit(ctx context.Context, user *models.User, action Action, ac ActionContext) (Decision, error) {
	now := g.now()
	period, err := g.usage.GetPeriod(ctx, user.ID, now)
	if errors.Is(err, models.ErrNotFound) {
		slog.Warn("No usage period for current month; denying.", "userId", user.ID, "action", action)
		return deny(apierr.ReasonPeriodMissing, -1, "no usage period is active for %s; contact support", now.UTC().Format("January 2006")), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load usage period: %w", err)
	}

	limits := g.Limits(user.Tier)
	switch action {
	case ActionUploadDocument:
		return g.checkUpload(ctx, user, limits, ac, now)
	case ActionAskQuestion:
		return checkQuestion(user.Tier, limits, period), nil
	}
	return Decision{}, fmt.Errorf("unknown gated action %q", action)
}

// Checks run daily count, pages, file size, library size; the first failure wins.
func (g *UsageGate) checkUpload(ctx context.Context, user *models.User, limits models.TierLimits, ac ActionContext, now time.Time) (Decision, error) {
	dayStart := models.StartOfDay(now)
	var selfToday, selfTotal int64
	if ac.Stored != nil {
		selfTotal = 1
		if !ac.Stored.CreatedAt.Before(dayStart) {
			selfToday = 1
		}
	}

	if limits.DocumentsPerDay == 0 {
		return deny(apierr.ReasonFeatureUnavailable, 0, "document processing is not available on the %s plan", user.Tier), nil
	}
	if limits.DocumentsPerDay != models.Unlimited {
		today, err := g.docs.CountDocumentsSince(ctx, user.ID, dayStart)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to count today's documents: %w", err)
		}
		if today-selfToday >= limits.DocumentsPerDay {
			return deny(apierr.ReasonQuotaReached, limits.DocumentsPerDay,
				"daily limit of %d documents reached on the %s plan", limits.DocumentsPerDay, user.Tier), nil
		}
	}
	if limits.MaxPagesPerDoc != models.Unlimited && int64(ac.PageCount) > limits.MaxPagesPerDoc {
		return deny(apierr.ReasonDocumentTooLarge, limits.MaxPagesPerDoc,
			"document has %d pages; the %s plan allows up to %d pages per document", ac.PageCount, user.Tier, limits.MaxPagesPerDoc), nil
	}
	if limits.MaxFileSizeBytes != models.Unlimited && ac.FileSize > limits.MaxFileSizeBytes {
		return deny(apierr.ReasonDocumentTooLarge, limits.MaxFileSizeBytes,
			"file is %.1f MB; the %s plan allows up to %d MB", float64(ac.FileSize)/mb, user.Tier, limits.MaxFileSizeBytes/mb), nil
	}
	if limits.LibrarySize != models.Unlimited {
		total, err := g.docs.CountDocuments(ctx, user.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to count documents: %w", err)
		}
		if total-selfTotal >= limits.LibrarySize {
			return deny(apierr.ReasonTooManyDocuments, limits.LibrarySize,
				"library limit of %d documents reached on the %s plan", limits.LibrarySize, user.Tier), nil
		}
	}
	return allow(), nil
}

func checkQuestion(tier models.Tier, limits models.TierLimits, period *models.UsagePeriod) Decision {
	switch {
	case limits.QuestionsPerPeriod == 0:
		return deny(apierr.ReasonFeatureUnavailable, 0, "document chat is not available on the %s plan", tier)
	case limits.QuestionsPerPeriod == models.Unlimited:
		return allow()
	case int64(period.QuestionsAsked) >= limits.QuestionsPerPeriod:
		return deny(apierr.ReasonQuotaReached, limits.QuestionsPerPeriod,
			"monthly limit of %d questions reached on the %s plan", limits.QuestionsPerPeriod, tier)
	}
	return allow()
}

// Check is CheckLimit returning the denial as an error.
func (g *UsageGate) Check(ctx context.Context, user *models.User, action Action, ac ActionContext) error {
	d, err := g.CheckLimit(ctx, user, action, ac)
	if err != nil {
		return err
	}
	return d.Err()
}

// Increment records usage after a gated operation succeeded.
func (g *UsageGate) Increment(ctx context.Context, userID string, delta models.UsageDelta) error {
	if delta.IsZero() {
		return nil
	}
	err := g.usage.IncrementUsage(ctx, userID, g.now(), delta)
	if errors.Is(err, models.ErrNotFound) {
		return apierr.UsageLimit(apierr.ReasonPeriodMissing, "no usage period is active for the current month", -1)
	}
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

// EnsurePeriod creates the current month's usage period if it is missing.
func (g *UsageGate) EnsurePeriod(ctx context.Context, userID string) (*models.UsagePeriod, error) {
	now := g.now()
	period, err := g.usage.GetPeriod(ctx, userID, now)
	if err == nil {
		return period, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to load usage period: %w", err)
	}

	start, end := models.MonthBounds(now)
	period = &models.UsagePeriod{
		ID:          models.PeriodID(userID, now),
		UserID:      userID,
		PeriodStart: start,
		PeriodEnd:   end,
	}
	err = g.usage.CreatePeriod(ctx, period)
	if errors.Is(err, models.ErrAlreadyExists) {
		return g.usage.GetPeriod(ctx, userID, now)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create usage period: %w", err)
	}
	slog.Info("Created usage period.", "userId", userID, "periodId", period.ID)
	return period, nil
}

type UsageReport struct {
	Tier           models.Tier         `json:"tier"`
	Limits         models.TierLimits   `json:"limits"`
	Period         *models.UsagePeriod `json:"period"`
	DocumentsToday int64               `json:"documentsToday"`
	LibrarySize    int64               `json:"librarySize"`
}

// Report gathers the user's limits and counters. Period is nil when none
// exists for the current month.
func (g *UsageGate) Report(ctx context.Context, user *models.User) (*UsageReport, error) {
	now := g.now()
	period, err := g.usage.GetPeriod(ctx, user.ID, now)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to load usage period: %w", err)
	}
	today, err := g.docs.CountDocumentsSince(ctx, user.ID, models.StartOfDay(now))
	if err != nil {
		return nil, fmt.Errorf("failed to count today's documents: %w", err)
	}
	total, err := g.docs.CountDocuments(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	return &UsageReport{
		Tier:           user.Tier,
		Limits:         g.Limits(user.Tier),
		Period:         period,
		DocumentsToday: today,
		LibrarySize:    total,
	}, nil
}

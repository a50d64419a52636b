package models

import (
	"fmt"
	"time"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierTeam    Tier = "team"
)

// UsagePeriod holds the monthly counters for one user. Exactly one period
// exists per user per calendar month, keyed by PeriodID.
type UsagePeriod struct {
	ID                 string    `firestore:"-" json:"id"`
	UserID             string    `firestore:"userId" json:"userId"`
	PeriodStart        time.Time `firestore:"periodStart" json:"periodStart"`
	PeriodEnd          time.Time `firestore:"periodEnd" json:"periodEnd"`
	DocumentsProcessed int       `firestore:"documentsProcessed" json:"documentsProcessed"`
	PagesProcessed     int       `firestore:"pagesProcessed" json:"pagesProcessed"`
	QuestionsAsked     int       `firestore:"questionsAsked" json:"questionsAsked"`
	APICalls           int       `firestore:"apiCalls" json:"apiCalls"`
}

// Contains reports whether t falls in [PeriodStart, PeriodEnd).
func (p *UsagePeriod) Contains(t time.Time) bool {
	return !t.Before(p.PeriodStart) && t.Before(p.PeriodEnd)
}

// UsageDelta is a set of counter increments. Counters only ever grow.
type UsageDelta struct {
	DocumentsProcessed int
	PagesProcessed     int
	QuestionsAsked     int
	APICalls           int
}

func (d UsageDelta) IsZero() bool {
	return d == UsageDelta{}
}

// MonthBounds returns the calendar-month window in UTC containing t.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// PeriodID is the deterministic record id of a user's period containing t.
func PeriodID(userID string, t time.Time) string {
	start, _ := MonthBounds(t)
	return fmt.Sprintf("%s_%s", userID, start.Format("2006-01"))
}

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Unlimited is the sentinel for a limit that is never reached.
const Unlimited int64 = -1

// TierLimits is the quota table row for one tier. A zero limit means the
// feature is not available on the tier.
type TierLimits struct {
	DocumentsPerDay    int64 `yaml:"documentsPerDay" json:"documentsPerDay"`
	MaxPagesPerDoc     int64 `yaml:"maxPagesPerDocument" json:"maxPagesPerDocument"`
	MaxFileSizeBytes   int64 `yaml:"maxFileSizeBytes" json:"maxFileSizeBytes"`
	QuestionsPerPeriod int64 `yaml:"questionsPerPeriod" json:"questionsPerPeriod"`
	LibrarySize        int64 `yaml:"librarySize" json:"librarySize"`
	APICallsPerPeriod  int64 `yaml:"apiCallsPerPeriod" json:"apiCallsPerPeriod"`
}

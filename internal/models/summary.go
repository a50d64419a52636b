package models

import "time"

// SummaryFormat controls how the executive overview is rendered.
type SummaryFormat string

const (
	FormatBullet    SummaryFormat = "bullet"
	FormatParagraph SummaryFormat = "paragraph"
	FormatDetailed  SummaryFormat = "detailed"
)

func (f SummaryFormat) Valid() bool {
	switch f {
	case FormatBullet, FormatParagraph, FormatDetailed:
		return true
	}
	return false
}

// SummaryLength selects the target word range of a summary.
type SummaryLength string

const (
	LengthShort    SummaryLength = "short"
	LengthMedium   SummaryLength = "medium"
	LengthDetailed SummaryLength = "detailed"
)

func (l SummaryLength) Valid() bool {
	switch l {
	case LengthShort, LengthMedium, LengthDetailed:
		return true
	}
	return false
}

// InsightType classifies a key insight.
type InsightType string

const (
	InsightFinding        InsightType = "finding"
	InsightRecommendation InsightType = "recommendation"
	InsightWarning        InsightType = "warning"
	InsightStatistic      InsightType = "statistic"
	InsightConclusion     InsightType = "conclusion"
)

// InsightTypes is the fixed display order of insight types.
var InsightTypes = []InsightType{
	InsightFinding,
	InsightRecommendation,
	InsightWarning,
	InsightStatistic,
	InsightConclusion,
}

func (t InsightType) Valid() bool {
	for _, known := range InsightTypes {
		if t == known {
			return true
		}
	}
	return false
}

type KeyInsight struct {
	Text string      `firestore:"text" json:"text"`
	Type InsightType `firestore:"type" json:"type"`
}

type Section struct {
	Title   string `firestore:"title" json:"title"`
	Content string `firestore:"content" json:"content"`
}

// Summary is one generated summary of a Document. Summaries are immutable;
// regenerating creates a new record.
type Summary struct {
	ID                 string        `firestore:"-" json:"id"`
	DocumentID         string        `firestore:"documentId" json:"documentId"`
	UserID             string        `firestore:"userId" json:"userId"`
	Format             SummaryFormat `firestore:"format" json:"format"`
	Length             SummaryLength `firestore:"length" json:"length"`
	Content            string        `firestore:"content" json:"content"`
	KeyInsights        []KeyInsight  `firestore:"keyInsights" json:"keyInsights"`
	Sections           []Section     `firestore:"sections" json:"sections"`
	SuggestedQuestions []string      `firestore:"suggestedQuestions" json:"suggestedQuestions"`
	Model              string        `firestore:"model" json:"model"`
	TokensUsed         int           `firestore:"tokensUsed" json:"tokensUsed"`
	CreatedAt          time.Time     `firestore:"createdAt" json:"createdAt"`
}

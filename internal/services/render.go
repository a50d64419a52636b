package services

import (
	"strings"

	"github.com/Lllllllleong/docinsight/internal/models"
)

var insightLabels = map[models.InsightType]string{
	models.InsightFinding:        "Finding",
	models.InsightRecommendation: "Recommendation",
	models.InsightWarning:        "Warning",
	models.InsightStatistic:      "Statistic",
	models.InsightConclusion:     "Conclusion",
}

// Render builds the markdown content stored on a Summary. Blocks with no
// source data are omitted.
func Render(n NormalizedSummary, format models.SummaryFormat) string {
	var blocks []string

	if n.Summary != "" {
		overview := n.Summary
		if format == models.FormatBullet {
			overview = bulletize(n.Summary)
		}
		blocks = append(blocks, "## "+overviewTitle+"\n\n"+overview)
	}

	if len(n.KeyInsights) > 0 {
		lines := make([]string, 0, len(n.KeyInsights))
		for _, in := range n.KeyInsights {
			lines = append(lines, "- **"+insightLabels[in.Type]+":** "+in.Text)
		}
		blocks = append(blocks, "## Key Insights\n\n"+strings.Join(lines, "\n"))
	}

	if len(n.Sections) > 0 {
		parts := make([]string, 0, len(n.Sections))
		for _, s := range n.Sections {
			parts = append(parts, "### "+s.Title+"\n\n"+s.Content)
		}
		blocks = append(blocks, "## Section Breakdown\n\n"+strings.Join(parts, "\n\n"))
	}

	if len(n.SuggestedQuestions) > 0 {
		lines := make([]string, 0, len(n.SuggestedQuestions))
		for _, q := range n.SuggestedQuestions {
			lines = append(lines, "- "+q)
		}
		blocks = append(blocks, "## Suggested Follow-up Questions\n\n"+strings.Join(lines, "\n"))
	}

	return strings.Join(blocks, "\n\n")
}

// bulletize turns prose into one bullet per sentence. Text that is already a
// list keeps one bullet per line.
func bulletize(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if item, ok := trimListMarker(line); ok {
			out = append(out, "- "+item)
			continue
		}
		for _, s := range splitSentences(line) {
			out = append(out, "- "+s)
		}
	}
	return strings.Join(out, "\n")
}

func trimListMarker(line string) (string, bool) {
	for _, m := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, m) {
			return strings.TrimSpace(line[len(m):]), true
		}
	}
	return line, false
}

// splitSentences cuts after '.', '!' or '?' when followed by whitespace.
func splitSentences(s string) []string {
	var out []string
	start := 0
	runes := []rune(s)
	for i, r := range runes {
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\t') {
			if part := strings.TrimSpace(string(runes[start : i+1])); part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	if part := strings.TrimSpace(string(runes[start:])); part != "" {
		out = append(out, part)
	}
	return out
}

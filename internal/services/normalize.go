package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Lllllllleong/docinsight/internal/models"
)

const (
	defaultSectionTitle = "Section Overview"
	overviewTitle       = "Executive Overview"
	emptySummaryNotice  = "No summary content could be generated for this document. Try regenerating the summary."
)

var insightSectionTitles = map[models.InsightType]string{
	models.InsightFinding:        "Key Findings",
	models.InsightRecommendation: "Recommendations",
	models.InsightWarning:        "Warnings and Risks",
	models.InsightStatistic:      "Notable Statistics",
	models.InsightConclusion:     "Conclusions",
}

// NormalizedSummary is model output after validation and repair.
type NormalizedSummary struct {
	Summary            string
	KeyInsights        []models.KeyInsight
	Sections           []models.Section
	SuggestedQuestions []string
}

// jsonObject keeps member order, which plain map decoding loses.
type jsonObject []jsonMember

type jsonMember struct {
	Key   string
	Value any
}

func (o jsonObject) get(keys ...string) (any, bool) {
	for _, k := range keys {
		for _, m := range o {
			if strings.EqualFold(m.Key, k) {
				return m.Value, true
			}
		}
	}
	return nil, false
}

// decodeJSON parses exactly one JSON value into string, json.Number, bool,
// nil, []any or jsonObject.
func decodeJSON(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var obj jsonObject
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("invalid object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj = append(obj, jsonMember{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return t, nil
	}
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseStructured reports ok=false when raw is not a JSON object.
func parseStructured(raw string) (jsonObject, bool) {
	v, err := decodeJSON(stripCodeFence(raw))
	if err != nil {
		return nil, false
	}
	obj, ok := v.(jsonObject)
	return obj, ok
}

// Normalize never fails. Unparseable output becomes the summary text, and
// the result always has at least one section.
func Normalize(raw string) NormalizedSummary {
	obj, ok := parseStructured(raw)
	if !ok {
		return backfill(NormalizedSummary{Summary: strings.TrimSpace(raw)})
	}

	var n NormalizedSummary
	if v, ok := obj.get("summary", "executiveSummary", "executive_summary"); ok {
		n.Summary = FlattenContent(v)
	}
	if v, ok := obj.get("keyInsights", "key_insights", "insights"); ok {
		n.KeyInsights = normalizeInsights(v)
	}
	if v, ok := obj.get("sections"); ok {
		n.Sections = normalizeSections(v)
	}
	if v, ok := obj.get("suggestedQuestions", "suggested_questions", "questions"); ok {
		n.SuggestedQuestions = normalizeQuestions(v)
	}
	return backfill(n)
}

func normalizeInsights(v any) []models.KeyInsight {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]models.KeyInsight, 0, len(items))
	for _, item := range items {
		var text, kind string
		switch it := item.(type) {
		case string:
			text = it
		case jsonObject:
			if t, ok := it.get("text", "insight"); ok {
				text, _ = t.(string)
			}
			if t, ok := it.get("type", "category"); ok {
				kind, _ = t.(string)
			}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		typ := models.InsightType(strings.ToLower(strings.TrimSpace(kind)))
		if !typ.Valid() {
			typ = models.InsightFinding
		}
		out = append(out, models.KeyInsight{Text: text, Type: typ})
	}
	return out
}

func normalizeSections(v any) []models.Section {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]models.Section, 0, len(items))
	for _, item := range items {
		var title string
		var content any
		switch it := item.(type) {
		case string:
			content = it
		case jsonObject:
			if t, ok := it.get("title", "heading", "section"); ok {
				title, _ = t.(string)
			}
			content, _ = it.get("content", "body", "text")
		}
		flat := FlattenContent(content)
		if flat == "" {
			continue
		}
		title = strings.TrimSpace(title)
		if title == "" {
			title = defaultSectionTitle
		}
		out = append(out, models.Section{Title: title, Content: flat})
	}
	return out
}

func normalizeQuestions(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// FlattenContent renders a decoded JSON value as plain text. Strings pass
// through trimmed; arrays and objects contribute their leaf values depth-first,
// one per line. Object keys are dropped.
func FlattenContent(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprint(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := FlattenContent(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case jsonObject:
		parts := make([]string, 0, len(t))
		for _, m := range t {
			if s := FlattenContent(m.Value); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func backfill(n NormalizedSummary) NormalizedSummary {
	if len(n.Sections) > 0 {
		return n
	}
	for _, typ := range models.InsightTypes {
		var lines []string
		for _, in := range n.KeyInsights {
			if in.Type == typ {
				lines = append(lines, "- "+in.Text)
			}
		}
		if len(lines) > 0 {
			n.Sections = append(n.Sections, models.Section{Title: insightSectionTitles[typ], Content: strings.Join(lines, "\n")})
		}
	}
	if len(n.Sections) == 0 && n.Summary != "" {
		n.Sections = []models.Section{{Title: overviewTitle, Content: n.Summary}}
	}
	if len(n.Sections) == 0 {
		n.Sections = []models.Section{{Title: overviewTitle, Content: emptySummaryNotice}}
	}
	return n
}

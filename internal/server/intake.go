package server

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Intent values the intake pipeline can assign to a free-text entry.
const (
	intentLog     = "LOG"
	intentExpense = "EXPENSE"
	intentMemo    = "MEMO"
	intentUnknown = "UNKNOWN"
)

type logDetails struct {
	Type  string  `json:"type"`
	Value string  `json:"value"`
	Notes *string `json:"notes,omitempty"`
}

type expenseDetails struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Notes    *string `json:"notes,omitempty"`
}

type memoDetails struct {
	Title   string     `json:"title"`
	Notes   string     `json:"notes"`
	DueDate *time.Time `json:"dueDate"`
	Source  string     `json:"source"`
}

// parseResult is the stable shape the intake pipeline hands back to the
// client. Exactly one details object is populated, matching the intent.
type parseResult struct {
	Intent         string          `json:"intent"`
	LogDetails     *logDetails     `json:"logDetails,omitempty"`
	ExpenseDetails *expenseDetails `json:"expenseDetails,omitempty"`
	MemoDetails    *memoDetails    `json:"memoDetails,omitempty"`
}

// stripCodeFences removes the markdown fence markers models like to wrap
// around JSON output.
func stripCodeFences(text string) string {
	cleaned := strings.ReplaceAll(text, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}

// parseModelDocument strips fences and decodes the model reply. ok is false
// when the reply is not valid JSON at all; valid JSON that is not an object
// yields an empty document with ok true.
func parseModelDocument(text string) (map[string]any, bool) {
	cleaned := stripCodeFences(text)
	if cleaned == "" {
		return nil, false
	}
	var raw any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, false
	}
	doc, _ := raw.(map[string]any)
	return doc, true
}

// classifyIntent trusts a usable intent declared by the model. Anything
// else falls back to the date heuristic: a relative date phrase in the raw
// input is strong evidence of a reminder.
func classifyIntent(doc map[string]any, rawInput string, now time.Time) string {
	declared := strings.ToUpper(strings.TrimSpace(toString(doc["intent"])))
	switch declared {
	case intentLog, intentExpense, intentMemo:
		return declared
	}
	if inferDueDate(rawInput, now) != nil {
		return intentMemo
	}
	return intentUnknown
}

// buildParseResult runs the sanitized model document and original input
// through classification and per-intent repair.
func buildParseResult(doc map[string]any, rawInput string, now time.Time) parseResult {
	result := parseResult{Intent: classifyIntent(doc, rawInput, now)}
	switch result.Intent {
	case intentLog:
		result.LogDetails = normalizeLogDetails(doc, rawInput)
	case intentExpense:
		result.ExpenseDetails = normalizeExpenseDetails(doc)
	case intentMemo:
		result.MemoDetails = normalizeMemoDetails(doc, rawInput, now)
	}
	return result
}

var isoDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseISODate accepts the timestamp forms models emit for dueDate. When
// the full value fails to parse, the date portion before the time
// separator gets one more try.
func parseISODate(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range isoDateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, true
		}
	}
	if idx := strings.IndexByte(trimmed, 'T'); idx > 0 {
		if parsed, err := time.Parse("2006-01-02", trimmed[:idx]); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

var (
	relativeDaysEN = regexp.MustCompile(`(?i)in\s+(\d+)\s+day`)
	relativeDaysZH = regexp.MustCompile(`(\d+)\s*天后`)
)

// inferDueDate resolves relative date phrases against the local calendar
// day of now. The pattern set is fixed; first match wins.
func inferDueDate(text string, now time.Time) *time.Time {
	day := startOfLocalDay(now)
	if strings.Contains(text, "明天") || strings.Contains(text, "tomorrow") {
		return timePtr(day.AddDate(0, 0, 1))
	}
	if strings.Contains(text, "后天") {
		return timePtr(day.AddDate(0, 0, 2))
	}
	if match := relativeDaysEN.FindStringSubmatch(text); match != nil {
		if days, err := strconv.Atoi(match[1]); err == nil {
			return timePtr(day.AddDate(0, 0, days))
		}
	}
	if match := relativeDaysZH.FindStringSubmatch(text); match != nil {
		if days, err := strconv.Atoi(match[1]); err == nil {
			return timePtr(day.AddDate(0, 0, days))
		}
	}
	if strings.Contains(text, "下周") || strings.Contains(strings.ToLower(text), "next week") {
		return timePtr(day.AddDate(0, 0, 7))
	}
	return nil
}

// startOfLocalDay anchors date math at local midnight so time zone
// conversion cannot shift the calendar day.
func startOfLocalDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func timePtr(t time.Time) *time.Time {
	return &t
}

var validLogTypes = map[string]bool{
	"Feeding":  true,
	"Drinking": true,
	"Activity": true,
	"Sleep":    true,
	"Bathroom": true,
	"Medical":  true,
	"Note":     true,
}

// canonicalLogType maps a model-supplied type onto the known set,
// forgiving case. Unrecognized values come back empty.
func canonicalLogType(value string) string {
	trimmed := strings.TrimSpace(value)
	if validLogTypes[trimmed] {
		return trimmed
	}
	lowered := strings.ToLower(trimmed)
	for name := range validLogTypes {
		if strings.ToLower(name) == lowered {
			return name
		}
	}
	return ""
}

type logKeyword struct {
	keyword string
	logType string
}

// Bilingual keyword table for log type inference. Order decides ties; the
// first keyword contained in the input wins.
var logTypeKeywords = []logKeyword{
	{"sleep", "Sleep"},
	{"nap", "Sleep"},
	{"睡", "Sleep"},
	{"困", "Sleep"},
	{"feed", "Feeding"},
	{"fed", "Feeding"},
	{"喂", "Feeding"},
	{"吃", "Feeding"},
	{"猫粮", "Feeding"},
	{"狗粮", "Feeding"},
	{"drink", "Drinking"},
	{"喝", "Drinking"},
	{"water", "Drinking"},
	{"walk", "Activity"},
	{"run", "Activity"},
	{"玩", "Activity"},
	{"运动", "Activity"},
	{"散步", "Activity"},
	{"toilet", "Bathroom"},
	{"bathroom", "Bathroom"},
	{"尿", "Bathroom"},
	{"便", "Bathroom"},
	{"排泄", "Bathroom"},
	{"med", "Medical"},
	{"药", "Medical"},
	{"打针", "Medical"},
	{"医院", "Medical"},
}

func logTypeFromKeywords(input string) string {
	lowered := strings.ToLower(input)
	for _, entry := range logTypeKeywords {
		if strings.Contains(lowered, entry.keyword) {
			return entry.logType
		}
	}
	return ""
}

func normalizeLogDetails(doc map[string]any, rawInput string) *logDetails {
	details, _ := doc["logDetails"].(map[string]any)

	logType := canonicalLogType(toString(details["type"]))
	if logType == "" {
		logType = logTypeFromKeywords(rawInput)
	}
	if logType == "" {
		logType = "Note"
	}

	value := ""
	if raw, ok := details["value"]; ok && raw != nil {
		value = toString(raw)
	}
	if value == "" {
		value = rawInput
	}

	result := &logDetails{Type: logType, Value: value}
	if raw, ok := details["notes"]; ok && raw != nil {
		notes := toString(raw)
		result.Notes = &notes
	}
	return result
}

func normalizeExpenseDetails(doc map[string]any) *expenseDetails {
	details, _ := doc["expenseDetails"].(map[string]any)

	amount := extractNumberFromMap(details, "amount")
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	category := strings.TrimSpace(toString(details["category"]))
	if category == "" {
		category = "Other"
	}

	result := &expenseDetails{Category: category, Amount: amount}
	if raw, ok := details["notes"]; ok && raw != nil {
		notes := toString(raw)
		result.Notes = &notes
	}
	return result
}

func normalizeMemoDetails(doc map[string]any, rawInput string, now time.Time) *memoDetails {
	details, _ := doc["memoDetails"].(map[string]any)

	var due *time.Time
	if raw, ok := details["dueDate"].(string); ok {
		if parsed, isDate := parseISODate(raw); isDate {
			due = &parsed
		}
	}
	if due == nil {
		due = inferDueDate(rawInput, now)
	}

	title := strings.TrimSpace(toString(details["title"]))
	if title == "" {
		title = strings.TrimSpace(rawInput)
	}
	notes := strings.TrimSpace(toString(details["notes"]))
	if notes == "" {
		notes = strings.TrimSpace(toString(details["description"]))
	}
	if notes == "" {
		notes = strings.TrimSpace(rawInput)
	}

	return &memoDetails{
		Title:   title,
		Notes:   notes,
		DueDate: due,
		Source:  "ai",
	}
}

// coerceStringList repairs a field the model was asked to return as a list
// but may not have. Bare strings wrap into a single-element list; anything
// else that is not a list becomes empty.
func coerceStringList(raw any) []string {
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return []string{}
		}
		return []string{v}
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if text := strings.TrimSpace(toString(item)); text != "" {
				result = append(result, text)
			}
		}
		return result
	default:
		return []string{}
	}
}

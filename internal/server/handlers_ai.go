package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type analysisRequest struct {
	Pet      map[string]any   `json:"pet"`
	Logs     []map[string]any `json:"logs"`
	Expenses []map[string]any `json:"expenses"`
	Language string           `json:"language"`
}

type analysisResponse struct {
	Summary     string   `json:"summary"`
	Risks       []string `json:"risks"`
	Suggestions []string `json:"suggestions"`
	LastUpdated string   `json:"lastUpdated"`
}

type parseRequest struct {
	Input string `json:"input"`
}

type chatRequest struct {
	Pet             map[string]any   `json:"pet"`
	Logs            []map[string]any `json:"logs"`
	AnalysisSummary string           `json:"analysisSummary"`
	AnalysisRisks   []string         `json:"analysisRisks"`
	History         []ChatTurn       `json:"history"`
	NewMessage      string           `json:"newMessage"`
	Language        string           `json:"language"`
}

// ensureAI guards the AI routes when the service started without a model
// credential.
func (a *App) ensureAI(c *gin.Context) bool {
	if a.ai != nil {
		return true
	}
	writeError(c, http.StatusInternalServerError, "GEMINI_API_KEY is not configured; Gemini API unavailable.")
	return false
}

func (a *App) analyze(c *gin.Context) {
	if !a.ensureAI(c) {
		return
	}
	var payload analysisRequest
	if !mustJSON(c, &payload) {
		return
	}
	if payload.Pet == nil {
		writeError(c, http.StatusBadRequest, "pet is required")
		return
	}

	resp, err := a.ai.Query(c.Request.Context(), AIModelRequest{
		Prompt:       buildAnalysisPrompt(payload),
		JSONResponse: true,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(c, http.StatusInternalServerError, "AI returned empty response")
			return
		}
		log.Printf("analysis request failed: %v", err)
		writeError(c, http.StatusBadGateway, "AI provider request failed")
		return
	}
	if strings.TrimSpace(resp.Text) == "" {
		writeError(c, http.StatusInternalServerError, "AI returned empty response")
		return
	}
	doc, ok := parseModelDocument(resp.Text)
	if !ok {
		writeError(c, http.StatusInternalServerError, "Failed to parse AI response")
		return
	}

	c.JSON(http.StatusOK, shapeAnalysis(doc, time.Now().UTC()))
}

func (a *App) parse(c *gin.Context) {
	if !a.ensureAI(c) {
		return
	}
	var payload parseRequest
	if !mustJSON(c, &payload) {
		return
	}
	if strings.TrimSpace(payload.Input) == "" {
		writeError(c, http.StatusBadRequest, "input is required")
		return
	}

	now := time.Now()
	var doc map[string]any
	resp, err := a.ai.Query(c.Request.Context(), AIModelRequest{
		Prompt:       buildParsePrompt(payload.Input, now),
		JSONResponse: true,
	})
	if err != nil {
		// Model trouble does not fail intake; the heuristics still run.
		log.Printf("parse request failed: %v", err)
	} else {
		doc, _ = parseModelDocument(resp.Text)
	}

	c.JSON(http.StatusOK, buildParseResult(doc, payload.Input, now))
}

func (a *App) chat(c *gin.Context) {
	if !a.ensureAI(c) {
		return
	}
	var payload chatRequest
	if !mustJSON(c, &payload) {
		return
	}
	if strings.TrimSpace(payload.NewMessage) == "" {
		writeError(c, http.StatusBadRequest, "newMessage is required")
		return
	}

	turns := make([]ChatTurn, 0, len(payload.History)+1)
	turns = append(turns, ChatTurn{Role: "user", Text: buildChatContext(payload)})
	turns = append(turns, payload.History...)

	resp, err := a.ai.Query(c.Request.Context(), AIModelRequest{
		Prompt:       payload.NewMessage,
		Conversation: turns,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusOK, gin.H{"text": ""})
			return
		}
		log.Printf("chat request failed: %v", err)
		writeError(c, http.StatusBadGateway, "AI provider request failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"text": resp.Text})
}

func buildAnalysisPrompt(payload analysisRequest) string {
	promptContext := map[string]any{
		"petProfile":      payload.Pet,
		"recentBehaviors": limitRecords(payload.Logs, 20),
		"recentExpenses":  limitRecords(payload.Expenses, 10),
	}
	langInstruction := "Return the response in English."
	if payload.Language == "zh" {
		langInstruction = "CRITICAL: Return summary/risk/suggestion text in Simplified Chinese. JSON keys stay English."
	}
	return "Analyze this pet data. Provide a brief health summary, potential risks, and suggestions.\n" +
		"Data: " + mustMarshalJSON(promptContext) + "\n\n" +
		langInstruction
}

func buildParsePrompt(input string, now time.Time) string {
	today := now.Format("2006-01-02")
	return "Classify user input as LOG, EXPENSE, or MEMO (reminder/todo) for a pet app. Extract details.\n" +
		"LOG tracks pet behavior (type/value/notes/date). EXPENSE tracks spending (category/amount/notes/date).\n" +
		"MEMO is a reminder with title, optional notes, and dueDate (ISO 8601 date). Keep intent uppercase.\n" +
		"IMPORTANT: Today's date is " + today + ". Calculate relative dates (e.g., '2 days later', '明天', '后天') based on this.\n" +
		"Input: \"" + input + "\"\n\n" +
		"Return JSON with intent and the matching *_Details object. Example: " +
		`{"intent": "MEMO", "memoDetails": {"title": "buy cat food", "dueDate": "2025-12-01", "notes": ""}}`
}

func buildChatContext(payload chatRequest) string {
	langInstruction := "Reply in English."
	if payload.Language == "zh" {
		langInstruction = "CRITICAL: Reply in Simplified Chinese ONLY."
	}

	lines := []string{
		"你是一款专业的宠物管理应用内置的 AI 宠物助手。",
		"你的核心任务是基于下方的宠物资料和用户问题，给出简洁的摘要和安全、可行的行动建议。",
		"在任何情况下，都要把宠物安全放在第一位。",
		"",
		fmt.Sprintf("Pet Profile: Name: %s, Species: %s, Age: %s, Weight: %skg.",
			toString(payload.Pet["name"]),
			toString(payload.Pet["species"]),
			toString(payload.Pet["age"]),
			toString(payload.Pet["weight"])),
		"",
		"Recent History:",
	}
	for _, entry := range limitRecords(payload.Logs, 15) {
		date := toString(entry["date"])
		if len(date) > 10 {
			date = date[:10]
		}
		lines = append(lines, fmt.Sprintf("- %s: %s (%s) %s",
			date, toString(entry["type"]), toString(entry["value"]), toString(entry["notes"])))
	}
	lines = append(lines, "")

	summary := payload.AnalysisSummary
	if summary == "" {
		summary = "No analysis available."
	}
	lines = append(lines, "Latest Analysis Summary: "+summary)
	if len(payload.AnalysisRisks) > 0 {
		lines = append(lines, "Risks identified: "+strings.Join(payload.AnalysisRisks, ", "))
	}
	lines = append(lines, "", langInstruction)
	return strings.Join(lines, "\n")
}

// shapeAnalysis reads the model's analysis document; missing or mistyped
// fields degrade to placeholders instead of failing the request.
func shapeAnalysis(doc map[string]any, now time.Time) analysisResponse {
	summary := strings.TrimSpace(toString(doc["summary"]))
	if summary == "" {
		summary = "No summary available."
	}
	return analysisResponse{
		Summary:     summary,
		Risks:       coerceStringList(doc["risks"]),
		Suggestions: coerceStringList(doc["suggestions"]),
		LastUpdated: now.Format(time.RFC3339),
	}
}

func limitRecords(records []map[string]any, max int) []map[string]any {
	if len(records) <= max {
		return records
	}
	return records[:max]
}

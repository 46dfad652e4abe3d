package server

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

func parseBodyTime(t *testing.T, raw any) time.Time {
	t.Helper()
	text, ok := raw.(string)
	if !ok {
		t.Fatalf("expected timestamp string, got %v", raw)
	}
	parsed, err := time.Parse(time.RFC3339, text)
	if err != nil {
		t.Fatalf("timestamp not RFC3339: %v", err)
	}
	return parsed
}

func TestLogLifecycle(t *testing.T) {
	router := newTestRouter(t)
	resetDatabase(t)
	token := authToken(t, 1, "records@example.com")

	petID := seedPet(t, "Mochi")
	logsPath := fmt.Sprintf("/api/pets/%d/logs", petID)

	explicit := time.Date(2025, 8, 10, 8, 0, 0, 0, time.UTC)
	rec := performRequest(t, router, http.MethodPost, logsPath, token,
		map[string]any{
			"type":  "Feeding",
			"value": "chicken",
			"notes": "morning meal",
			"date":  explicit.Format(time.RFC3339),
		}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeJSONMap(t, rec)
	datedLogID := int64(body["id"].(float64))
	if int64(body["petId"].(float64)) != petID {
		t.Fatalf("unexpected petId: %v", body["petId"])
	}
	if body["type"] != "Feeding" || body["value"] != "chicken" || body["notes"] != "morning meal" {
		t.Fatalf("unexpected log fields: %v", body)
	}
	if got := parseBodyTime(t, body["date"]); !got.Equal(explicit) {
		t.Fatalf("expected date %s, got %s", explicit, got)
	}

	before := time.Now().UTC()
	rec = performRequest(t, router, http.MethodPost, logsPath, token,
		map[string]any{"type": "Sleep"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	body = decodeJSONMap(t, rec)
	if body["value"] != nil || body["notes"] != nil {
		t.Fatalf("expected null value and notes, got %v", body)
	}
	defaulted := parseBodyTime(t, body["date"])
	if defaulted.Before(before.Add(-time.Minute)) || defaulted.After(time.Now().UTC().Add(time.Minute)) {
		t.Fatalf("expected date to default to now, got %s", defaulted)
	}

	rec = performRequest(t, router, http.MethodPost, logsPath, token,
		map[string]any{"type": "Grooming"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "type must be one of Feeding, Drinking, Activity, Sleep, Bathroom, Medical, Note" {
		t.Fatalf("unexpected detail %q", detail)
	}

	rec = performRequest(t, router, http.MethodPost, "/api/pets/999/logs", token,
		map[string]any{"type": "Feeding"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing pet, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "Pet not found" {
		t.Fatalf("unexpected detail %q", detail)
	}

	// Newest occurrence first.
	rec = performRequest(t, router, http.MethodGet, logsPath, token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	entries := decodeJSONList(t, rec)
	if len(entries) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(entries))
	}
	if entries[0].(map[string]any)["type"] != "Sleep" {
		t.Fatalf("expected newest log first, got %v", entries[0])
	}
	if int64(entries[1].(map[string]any)["id"].(float64)) != datedLogID {
		t.Fatalf("expected dated log last, got %v", entries[1])
	}

	// Omitting date on update keeps the stored occurrence time.
	updatePath := fmt.Sprintf("%s/%d", logsPath, datedLogID)
	rec = performRequest(t, router, http.MethodPut, updatePath, token,
		map[string]any{"type": "Medical", "value": "dewormer"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	body = decodeJSONMap(t, rec)
	if body["type"] != "Medical" || body["value"] != "dewormer" {
		t.Fatalf("unexpected updated fields: %v", body)
	}
	if got := parseBodyTime(t, body["date"]); !got.Equal(explicit) {
		t.Fatalf("expected occurrence time kept, got %s", got)
	}

	moved := time.Date(2025, 8, 12, 9, 30, 0, 0, time.UTC)
	rec = performRequest(t, router, http.MethodPut, updatePath, token,
		map[string]any{"type": "Medical", "date": moved.Format(time.RFC3339)}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := parseBodyTime(t, decodeJSONMap(t, rec)["date"]); !got.Equal(moved) {
		t.Fatalf("expected occurrence time moved, got %s", got)
	}

	rec = performRequest(t, router, http.MethodPut, fmt.Sprintf("%s/999", logsPath), token,
		map[string]any{"type": "Note"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing log, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "Log not found" {
		t.Fatalf("unexpected detail %q", detail)
	}

	rec = performRequest(t, router, http.MethodDelete, updatePath, token, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = performRequest(t, router, http.MethodDelete, updatePath, token, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "Log not found" {
		t.Fatalf("unexpected detail %q", detail)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	router := newTestRouter(t)
	resetDatabase(t)
	token := authToken(t, 1, "records@example.com")

	petID := seedPet(t, "Mochi")
	expensesPath := fmt.Sprintf("/api/pets/%d/expenses", petID)

	spent := time.Date(2025, 8, 5, 14, 0, 0, 0, time.UTC)
	rec := performRequest(t, router, http.MethodPost, expensesPath, token,
		map[string]any{
			"category": "Food",
			"amount":   12.5,
			"notes":    "dry food bag",
			"date":     spent.Format(time.RFC3339),
		}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeJSONMap(t, rec)
	expenseID := int64(body["id"].(float64))
	if body["category"] != "Food" || body["amount"] != 12.5 || body["notes"] != "dry food bag" {
		t.Fatalf("unexpected expense fields: %v", body)
	}
	if got := parseBodyTime(t, body["date"]); !got.Equal(spent) {
		t.Fatalf("expected date %s, got %s", spent, got)
	}

	rec = performRequest(t, router, http.MethodPost, expensesPath, token,
		map[string]any{"category": "  ", "amount": 1}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank category, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "category is required" {
		t.Fatalf("unexpected detail %q", detail)
	}

	rec = performRequest(t, router, http.MethodPost, "/api/pets/999/expenses", token,
		map[string]any{"category": "Food", "amount": 1}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing pet, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "Pet not found" {
		t.Fatalf("unexpected detail %q", detail)
	}

	later := time.Date(2025, 8, 6, 9, 0, 0, 0, time.UTC)
	seedExpense(t, petID, "Vet", 80, later)

	rec = performRequest(t, router, http.MethodGet, expensesPath, token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	entries := decodeJSONList(t, rec)
	if len(entries) != 2 {
		t.Fatalf("expected 2 expenses, got %d", len(entries))
	}
	if entries[0].(map[string]any)["category"] != "Vet" {
		t.Fatalf("expected most recent spend first, got %v", entries[0])
	}

	updatePath := fmt.Sprintf("%s/%d", expensesPath, expenseID)
	rec = performRequest(t, router, http.MethodPut, updatePath, token,
		map[string]any{"category": "Toys", "amount": 30}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	body = decodeJSONMap(t, rec)
	if body["category"] != "Toys" || body["amount"] != 30.0 {
		t.Fatalf("unexpected updated fields: %v", body)
	}
	if body["notes"] != nil {
		t.Fatalf("expected notes overwritten to null, got %v", body["notes"])
	}
	if got := parseBodyTime(t, body["date"]); !got.Equal(spent) {
		t.Fatalf("expected spend time kept, got %s", got)
	}

	rec = performRequest(t, router, http.MethodPut, fmt.Sprintf("%s/999", expensesPath), token,
		map[string]any{"category": "Toys", "amount": 1}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing expense, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "Expense not found" {
		t.Fatalf("unexpected detail %q", detail)
	}

	rec = performRequest(t, router, http.MethodDelete, updatePath, token, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = performRequest(t, router, http.MethodDelete, updatePath, token, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "Expense not found" {
		t.Fatalf("unexpected detail %q", detail)
	}
}

func TestMemoCreateAndValidation(t *testing.T) {
	router := newTestRouter(t)
	resetDatabase(t)
	token := authToken(t, 1, "records@example.com")

	petID := seedPet(t, "Mochi")
	memosPath := fmt.Sprintf("/api/pets/%d/memos", petID)

	before := time.Now().UTC()
	rec := performRequest(t, router, http.MethodPost, memosPath, token,
		map[string]any{"title": "buy litter"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeJSONMap(t, rec)
	if body["title"] != "buy litter" {
		t.Fatalf("unexpected title: %v", body["title"])
	}
	if body["source"] != "manual" {
		t.Fatalf("expected default source manual, got %v", body["source"])
	}
	if body["done"] != false {
		t.Fatalf("expected done false, got %v", body["done"])
	}
	if body["dueDate"] != nil {
		t.Fatalf("expected null dueDate, got %v", body["dueDate"])
	}
	created := parseBodyTime(t, body["createdAt"])
	if created.Before(before.Add(-time.Minute)) || created.After(time.Now().UTC().Add(time.Minute)) {
		t.Fatalf("expected createdAt near now, got %s", created)
	}

	due := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	rec = performRequest(t, router, http.MethodPost, memosPath, token,
		map[string]any{
			"title":   "vaccine booster",
			"notes":   "rabies",
			"dueDate": due.Format(time.RFC3339),
			"source":  "ai",
		}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	body = decodeJSONMap(t, rec)
	if body["source"] != "ai" || body["notes"] != "rabies" {
		t.Fatalf("unexpected memo fields: %v", body)
	}
	if got := parseBodyTime(t, body["dueDate"]); !got.Equal(due) {
		t.Fatalf("expected due date %s, got %s", due, got)
	}

	rec = performRequest(t, router, http.MethodPost, memosPath, token,
		map[string]any{"title": "   "}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank title, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "title is required" {
		t.Fatalf("unexpected detail %q", detail)
	}

	rec = performRequest(t, router, http.MethodPost, memosPath, token,
		map[string]any{"title": "x", "source": "robot"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid source, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "source must be manual or ai" {
		t.Fatalf("unexpected detail %q", detail)
	}

	rec = performRequest(t, router, http.MethodPost, "/api/pets/999/memos", token,
		map[string]any{"title": "ghost"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing pet, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "Pet not found" {
		t.Fatalf("unexpected detail %q", detail)
	}
}

func TestMemoOrdering(t *testing.T) {
	router := newTestRouter(t)
	resetDatabase(t)
	token := authToken(t, 1, "records@example.com")

	petID := seedPet(t, "Mochi")

	soon := time.Date(2025, 8, 26, 0, 0, 0, 0, time.UTC)
	later := time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC)
	seedMemo(t, petID, "due later", &later, time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC))
	seedMemo(t, petID, "due soon", &soon, time.Date(2025, 8, 19, 10, 0, 0, 0, time.UTC))
	seedMemo(t, petID, "undated old", nil, time.Date(2025, 8, 10, 10, 0, 0, 0, time.UTC))
	seedMemo(t, petID, "undated new", nil, time.Date(2025, 8, 18, 10, 0, 0, 0, time.UTC))

	rec := performRequest(t, router, http.MethodGet, fmt.Sprintf("/api/pets/%d/memos", petID), token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	entries := decodeJSONList(t, rec)
	if len(entries) != 4 {
		t.Fatalf("expected 4 memos, got %d", len(entries))
	}

	titles := make([]string, 0, len(entries))
	for _, item := range entries {
		titles = append(titles, item.(map[string]any)["title"].(string))
	}
	want := []string{"due soon", "due later", "undated new", "undated old"}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("unexpected memo order: %v", titles)
		}
	}
}

func TestMemoUpdateAndDelete(t *testing.T) {
	router := newTestRouter(t)
	resetDatabase(t)
	token := authToken(t, 1, "records@example.com")

	petID := seedPet(t, "Mochi")
	memosPath := fmt.Sprintf("/api/pets/%d/memos", petID)

	due := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	rec := performRequest(t, router, http.MethodPost, memosPath, token,
		map[string]any{"title": "vet visit", "dueDate": due.Format(time.RFC3339), "source": "ai"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	memoID := int64(decodeJSONMap(t, rec)["id"].(float64))
	updatePath := fmt.Sprintf("%s/%d", memosPath, memoID)

	// Omitting dueDate clears it, and a blank source keeps the stored one.
	rec = performRequest(t, router, http.MethodPut, updatePath, token,
		map[string]any{"title": "vet visit done", "done": true}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeJSONMap(t, rec)
	if body["title"] != "vet visit done" || body["done"] != true {
		t.Fatalf("unexpected updated fields: %v", body)
	}
	if body["dueDate"] != nil {
		t.Fatalf("expected dueDate cleared, got %v", body["dueDate"])
	}
	if body["source"] != "ai" {
		t.Fatalf("expected source kept, got %v", body["source"])
	}

	rec = performRequest(t, router, http.MethodPut, updatePath, token,
		map[string]any{"title": "vet visit", "source": "manual"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeJSONMap(t, rec); body["source"] != "manual" {
		t.Fatalf("expected source replaced, got %v", body["source"])
	}

	rec = performRequest(t, router, http.MethodPut, updatePath, token,
		map[string]any{"title": "x", "source": "robot"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid source, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "source must be manual or ai" {
		t.Fatalf("unexpected detail %q", detail)
	}

	rec = performRequest(t, router, http.MethodPut, fmt.Sprintf("%s/999", memosPath), token,
		map[string]any{"title": "ghost"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing memo, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "Memo not found" {
		t.Fatalf("unexpected detail %q", detail)
	}

	rec = performRequest(t, router, http.MethodDelete, updatePath, token, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = performRequest(t, router, http.MethodDelete, updatePath, token, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "Memo not found" {
		t.Fatalf("unexpected detail %q", detail)
	}
}

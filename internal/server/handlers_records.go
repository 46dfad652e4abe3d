package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

type logPayload struct {
	Type  string     `json:"type"`
	Value *string    `json:"value"`
	Notes *string    `json:"notes"`
	Date  *time.Time `json:"date"`
}

type logResponse struct {
	ID    int64     `json:"id"`
	PetID int64     `json:"petId"`
	Type  string    `json:"type"`
	Value *string   `json:"value"`
	Notes *string   `json:"notes"`
	Date  time.Time `json:"date"`
}

type expensePayload struct {
	Category string     `json:"category"`
	Amount   float64    `json:"amount"`
	Notes    *string    `json:"notes"`
	Date     *time.Time `json:"date"`
}

type expenseResponse struct {
	ID       int64     `json:"id"`
	PetID    int64     `json:"petId"`
	Category string    `json:"category"`
	Amount   float64   `json:"amount"`
	Notes    *string   `json:"notes"`
	Date     time.Time `json:"date"`
}

type memoPayload struct {
	Title   string     `json:"title"`
	Notes   *string    `json:"notes"`
	DueDate *time.Time `json:"dueDate"`
	Done    bool       `json:"done"`
	Source  string     `json:"source"`
}

type memoResponse struct {
	ID        int64      `json:"id"`
	PetID     int64      `json:"petId"`
	Title     string     `json:"title"`
	Notes     *string    `json:"notes"`
	DueDate   *time.Time `json:"dueDate"`
	Done      bool       `json:"done"`
	Source    string     `json:"source"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (a *App) listLogs(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}

	rows, err := a.db.Query(c.Request.Context(),
		`SELECT id, pet_id, type, value, notes, occurred_on
		 FROM pet_logs
		 WHERE pet_id = $1
		 ORDER BY occurred_on DESC, id DESC`, petID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to list logs")
		return
	}
	defer rows.Close()

	entries := []logResponse{}
	for rows.Next() {
		var entry logResponse
		if err := rows.Scan(&entry.ID, &entry.PetID, &entry.Type,
			&entry.Value, &entry.Notes, &entry.Date); err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to read log row")
			return
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to list logs")
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (a *App) addLog(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}
	var payload logPayload
	if !mustJSON(c, &payload) {
		return
	}
	if !validLogTypes[payload.Type] {
		writeError(c, http.StatusBadRequest, "type must be one of Feeding, Drinking, Activity, Sleep, Bathroom, Medical, Note")
		return
	}

	ctx := c.Request.Context()
	if !a.requirePet(c, ctx, petID) {
		return
	}

	occurredOn := time.Now().UTC()
	if payload.Date != nil {
		occurredOn = *payload.Date
	}

	var entry logResponse
	err := a.db.QueryRow(ctx,
		`INSERT INTO pet_logs (pet_id, type, value, notes, occurred_on)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, pet_id, type, value, notes, occurred_on`,
		petID, payload.Type, payload.Value, payload.Notes, occurredOn).
		Scan(&entry.ID, &entry.PetID, &entry.Type, &entry.Value, &entry.Notes, &entry.Date)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to create log")
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (a *App) updateLog(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}
	logID, ok := pathID(c, "log_id")
	if !ok {
		return
	}
	var payload logPayload
	if !mustJSON(c, &payload) {
		return
	}
	if !validLogTypes[payload.Type] {
		writeError(c, http.StatusBadRequest, "type must be one of Feeding, Drinking, Activity, Sleep, Bathroom, Medical, Note")
		return
	}

	var entry logResponse
	err := a.db.QueryRow(c.Request.Context(),
		`UPDATE pet_logs
		 SET type = $1, value = $2, notes = $3, occurred_on = COALESCE($4, occurred_on)
		 WHERE id = $5 AND pet_id = $6
		 RETURNING id, pet_id, type, value, notes, occurred_on`,
		payload.Type, payload.Value, payload.Notes, payload.Date, logID, petID).
		Scan(&entry.ID, &entry.PetID, &entry.Type, &entry.Value, &entry.Notes, &entry.Date)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(c, http.StatusNotFound, "Log not found")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to update log")
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (a *App) deleteLog(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}
	logID, ok := pathID(c, "log_id")
	if !ok {
		return
	}

	tag, err := a.db.Exec(c.Request.Context(),
		`DELETE FROM pet_logs WHERE id = $1 AND pet_id = $2`, logID, petID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to delete log")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(c, http.StatusNotFound, "Log not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *App) listExpenses(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}

	rows, err := a.db.Query(c.Request.Context(),
		`SELECT id, pet_id, category, amount, notes, spent_on
		 FROM pet_expenses
		 WHERE pet_id = $1
		 ORDER BY spent_on DESC, id DESC`, petID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to list expenses")
		return
	}
	defer rows.Close()

	entries := []expenseResponse{}
	for rows.Next() {
		var entry expenseResponse
		if err := rows.Scan(&entry.ID, &entry.PetID, &entry.Category,
			&entry.Amount, &entry.Notes, &entry.Date); err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to read expense row")
			return
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to list expenses")
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (a *App) addExpense(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}
	var payload expensePayload
	if !mustJSON(c, &payload) {
		return
	}
	if strings.TrimSpace(payload.Category) == "" {
		writeError(c, http.StatusBadRequest, "category is required")
		return
	}

	ctx := c.Request.Context()
	if !a.requirePet(c, ctx, petID) {
		return
	}

	spentOn := time.Now().UTC()
	if payload.Date != nil {
		spentOn = *payload.Date
	}

	var entry expenseResponse
	err := a.db.QueryRow(ctx,
		`INSERT INTO pet_expenses (pet_id, category, amount, notes, spent_on)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, pet_id, category, amount, notes, spent_on`,
		petID, payload.Category, payload.Amount, payload.Notes, spentOn).
		Scan(&entry.ID, &entry.PetID, &entry.Category, &entry.Amount, &entry.Notes, &entry.Date)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to create expense")
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (a *App) updateExpense(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}
	expenseID, ok := pathID(c, "expense_id")
	if !ok {
		return
	}
	var payload expensePayload
	if !mustJSON(c, &payload) {
		return
	}
	if strings.TrimSpace(payload.Category) == "" {
		writeError(c, http.StatusBadRequest, "category is required")
		return
	}

	var entry expenseResponse
	err := a.db.QueryRow(c.Request.Context(),
		`UPDATE pet_expenses
		 SET category = $1, amount = $2, notes = $3, spent_on = COALESCE($4, spent_on)
		 WHERE id = $5 AND pet_id = $6
		 RETURNING id, pet_id, category, amount, notes, spent_on`,
		payload.Category, payload.Amount, payload.Notes, payload.Date, expenseID, petID).
		Scan(&entry.ID, &entry.PetID, &entry.Category, &entry.Amount, &entry.Notes, &entry.Date)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(c, http.StatusNotFound, "Expense not found")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to update expense")
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (a *App) deleteExpense(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}
	expenseID, ok := pathID(c, "expense_id")
	if !ok {
		return
	}

	tag, err := a.db.Exec(c.Request.Context(),
		`DELETE FROM pet_expenses WHERE id = $1 AND pet_id = $2`, expenseID, petID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to delete expense")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(c, http.StatusNotFound, "Expense not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *App) listMemos(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}

	// Dated reminders first in due order, undated ones after, newest first.
	rows, err := a.db.Query(c.Request.Context(),
		`SELECT id, pet_id, title, notes, due_on, is_done, source, created_at
		 FROM pet_memos
		 WHERE pet_id = $1
		 ORDER BY (due_on IS NULL), due_on ASC, created_at DESC, id DESC`, petID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to list memos")
		return
	}
	defer rows.Close()

	entries := []memoResponse{}
	for rows.Next() {
		var entry memoResponse
		if err := rows.Scan(&entry.ID, &entry.PetID, &entry.Title, &entry.Notes,
			&entry.DueDate, &entry.Done, &entry.Source, &entry.CreatedAt); err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to read memo row")
			return
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to list memos")
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (a *App) addMemo(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}
	var payload memoPayload
	if !mustJSON(c, &payload) {
		return
	}
	if strings.TrimSpace(payload.Title) == "" {
		writeError(c, http.StatusBadRequest, "title is required")
		return
	}
	source := payload.Source
	if source == "" {
		source = "manual"
	}
	if source != "manual" && source != "ai" {
		writeError(c, http.StatusBadRequest, "source must be manual or ai")
		return
	}

	ctx := c.Request.Context()
	if !a.requirePet(c, ctx, petID) {
		return
	}

	var entry memoResponse
	err := a.db.QueryRow(ctx,
		`INSERT INTO pet_memos (pet_id, title, notes, due_on, is_done, source)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, pet_id, title, notes, due_on, is_done, source, created_at`,
		petID, payload.Title, payload.Notes, payload.DueDate, payload.Done, source).
		Scan(&entry.ID, &entry.PetID, &entry.Title, &entry.Notes,
			&entry.DueDate, &entry.Done, &entry.Source, &entry.CreatedAt)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to create memo")
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (a *App) updateMemo(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}
	memoID, ok := pathID(c, "memo_id")
	if !ok {
		return
	}
	var payload memoPayload
	if !mustJSON(c, &payload) {
		return
	}
	if strings.TrimSpace(payload.Title) == "" {
		writeError(c, http.StatusBadRequest, "title is required")
		return
	}
	if payload.Source != "" && payload.Source != "manual" && payload.Source != "ai" {
		writeError(c, http.StatusBadRequest, "source must be manual or ai")
		return
	}

	// dueDate overwrites as sent, clearing included; a blank source keeps
	// the stored value.
	var entry memoResponse
	err := a.db.QueryRow(c.Request.Context(),
		`UPDATE pet_memos
		 SET title = $1, notes = $2, due_on = $3, is_done = $4, source = COALESCE(NULLIF($5, ''), source)
		 WHERE id = $6 AND pet_id = $7
		 RETURNING id, pet_id, title, notes, due_on, is_done, source, created_at`,
		payload.Title, payload.Notes, payload.DueDate, payload.Done, payload.Source, memoID, petID).
		Scan(&entry.ID, &entry.PetID, &entry.Title, &entry.Notes,
			&entry.DueDate, &entry.Done, &entry.Source, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(c, http.StatusNotFound, "Memo not found")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to update memo")
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (a *App) deleteMemo(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}
	memoID, ok := pathID(c, "memo_id")
	if !ok {
		return
	}

	tag, err := a.db.Exec(c.Request.Context(),
		`DELETE FROM pet_memos WHERE id = $1 AND pet_id = $2`, memoID, petID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to delete memo")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(c, http.StatusNotFound, "Memo not found")
		return
	}
	c.Status(http.StatusNoContent)
}

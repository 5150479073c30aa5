// Package http provides the JSON API server and handlers.
//
// This file implements response writing: DTO shapes for the wire, the
// error envelope, and the mapping from the error taxonomy onto HTTP
// status codes.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"expensely/internal/core"
	"expensely/internal/services"
)

type userDTO struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type categoryDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type expenseDTO struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Amount      string      `json:"amount"`
	Frequency   int64       `json:"frequency"`
	IsRecurring bool        `json:"isRecurring"`
	Total       string      `json:"total"`
	CategoryID  int64       `json:"categoryId"`
	Category    categoryDTO `json:"category"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type expensePageDTO struct {
	Items      []expenseDTO `json:"items"`
	TotalCount int64        `json:"totalCount"`
	Page       int          `json:"page"`
	TotalPages int          `json:"totalPages"`
}

// The password hash never crosses this boundary.
func toUserDTO(u *core.User) userDTO {
	return userDTO{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}

func toCategoryDTO(c core.Category) categoryDTO {
	return categoryDTO{ID: c.ID, Name: c.Name, Description: c.Description}
}

func toExpenseDTO(e core.Expense) expenseDTO {
	return expenseDTO{
		ID:          e.ID,
		Title:       e.Title,
		Amount:      e.Amount.Decimal(),
		Frequency:   e.Frequency,
		IsRecurring: e.IsRecurring,
		Total:       e.Total.Decimal(),
		CategoryID:  e.CategoryID,
		Category:    toCategoryDTO(e.Category),
		CreatedAt:   e.CreatedAt,
	}
}

func toExpensePageDTO(p *services.ExpensePage) expensePageDTO {
	items := make([]expenseDTO, 0, len(p.Items))
	for _, e := range p.Items {
		items = append(items, toExpenseDTO(e))
	}
	return expensePageDTO{
		Items:      items,
		TotalCount: p.TotalCount,
		Page:       p.Page,
		TotalPages: p.TotalPages,
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func statusForKind(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindAuth:
		return http.StatusUnauthorized
	case core.KindConflict:
		return http.StatusConflict
	case core.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a taxonomy error onto the wire. Internal causes are
// logged server-side; the client only sees the generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := core.AsError(err)
	if appErr.Kind == core.KindInternal {
		slog.ErrorContext(r.Context(), "Request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path)
	}
	writeJSON(w, statusForKind(appErr.Kind), errorEnvelope{
		Error: errorBody{Code: appErr.Code, Message: appErr.Message},
	})
}

package http

import (
	"net/http"

	"expensely/internal/services"
)

type createExpenseRequest struct {
	Title       string `json:"title"`
	Amount      string `json:"amount"`
	Frequency   *int64 `json:"frequency"`
	IsRecurring bool   `json:"isRecurring"`
	CategoryID  int64  `json:"categoryId"`
}

type updateExpenseRequest struct {
	Title       *string `json:"title"`
	Amount      *string `json:"amount"`
	Frequency   *int64  `json:"frequency"`
	IsRecurring *bool   `json:"isRecurring"`
	CategoryID  *int64  `json:"categoryId"`
}

type expenseResponse struct {
	Expense expenseDTO `json:"expense"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	in := services.ExpenseInput{
		Title:       sanitizeInput(req.Title),
		Amount:      amount,
		Frequency:   1,
		IsRecurring: req.IsRecurring,
		CategoryID:  req.CategoryID,
	}
	if req.Frequency != nil {
		in.Frequency = *req.Frequency
	}

	expense, err := s.expSvc.Create(r.Context(), sessionClaims(r).UserID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, expenseResponse{Expense: toExpenseDTO(*expense)})
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	expense, err := s.expSvc.Get(r.Context(), id, sessionClaims(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, expenseResponse{Expense: toExpenseDTO(*expense)})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	upd := services.ExpenseUpdate{
		Frequency:   req.Frequency,
		IsRecurring: req.IsRecurring,
		CategoryID:  req.CategoryID,
	}
	if req.Title != nil {
		title := sanitizeInput(*req.Title)
		upd.Title = &title
	}
	if req.Amount != nil {
		amount, err := parseAmount(*req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		upd.Amount = &amount
	}

	expense, err := s.expSvc.Update(r.Context(), id, sessionClaims(r).UserID, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, expenseResponse{Expense: toExpenseDTO(*expense)})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.expSvc.Delete(r.Context(), id, sessionClaims(r).UserID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "expense deleted"})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	params, err := parseListParams(r, s.pageSizeDefault, s.pageSizeMax)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := s.expSvc.List(r.Context(), sessionClaims(r).UserID, params.Filter, params.Page, params.PageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toExpensePageDTO(page))
}

const categoryCacheKey = "categories"

type categoriesResponse struct {
	Categories []categoryDTO `json:"categories"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, ok := s.categoryCache.Get(categoryCacheKey)
	if !ok {
		var err error
		categories, err = s.expSvc.Categories(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.categoryCache.Set(categoryCacheKey, categories)
	}

	dtos := make([]categoryDTO, 0, len(categories))
	for _, c := range categories {
		dtos = append(dtos, toCategoryDTO(c))
	}
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: dtos})
}

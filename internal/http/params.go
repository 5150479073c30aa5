// This file implements utilities for parsing and validating request
// data: JSON bodies, path ids, and list query parameters.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"expensely/internal/core"
	"expensely/internal/storage"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20 // 1MB

// decodeJSON reads a JSON body into dst, rejecting unknown fields and
// trailing garbage.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return core.Validation("invalid_body", "request body is not valid JSON")
	}
	if dec.More() {
		return core.Validation("invalid_body", "request body must contain a single JSON object")
	}
	return nil
}

// pathID extracts the {id} path value as a positive integer.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, core.Validation("invalid_id", "invalid expense id")
	}
	return id, nil
}

// ListParams holds parsed pagination and filter values from the query
// string.
type ListParams struct {
	Page     int
	PageSize int
	Filter   storage.Filter
}

// parseListParams extracts page, limit, and filters from the query
// string. Missing values fall back to defaults; malformed values are
// validation errors rather than silent fallbacks.
func parseListParams(r *http.Request, defaultPageSize, maxPageSize int) (ListParams, error) {
	q := r.URL.Query()
	p := ListParams{Page: 1, PageSize: defaultPageSize}

	if v := strings.TrimSpace(q.Get("page")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, core.Validation("invalid_page", "page must be a positive integer")
		}
		p.Page = n
	}

	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, core.Validation("invalid_page_size", "limit must be a positive integer")
		}
		if n > maxPageSize {
			n = maxPageSize
		}
		p.PageSize = n
	}

	p.Filter.Title = strings.TrimSpace(q.Get("title"))
	p.Filter.Category = strings.TrimSpace(q.Get("category"))

	if v := strings.TrimSpace(q.Get("minAmount")); v != "" {
		cents, err := core.ParseDecimalToCents(v)
		if err != nil {
			return p, core.Validation("invalid_min_amount", "minAmount must be a positive decimal")
		}
		p.Filter.MinCents = &cents
	}

	if v := strings.TrimSpace(q.Get("maxAmount")); v != "" {
		cents, err := core.ParseDecimalToCents(v)
		if err != nil {
			return p, core.Validation("invalid_max_amount", "maxAmount must be a positive decimal")
		}
		p.Filter.MaxCents = &cents
	}

	if p.Filter.MinCents != nil && p.Filter.MaxCents != nil && *p.Filter.MinCents > *p.Filter.MaxCents {
		return p, core.Validation("invalid_amount_range", "minAmount must not exceed maxAmount")
	}

	return p, nil
}

// parseAmount converts a decimal JSON amount field into cents.
func parseAmount(s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		var appErr *core.Error
		if errors.As(err, &appErr) {
			return core.Money{}, appErr
		}
		return core.Money{}, core.ErrInvalidAmount
	}
	return core.Money{Cents: cents}, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1 // remove character
		}
		return r
	}, s)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"expensely/internal/amqp"
	"expensely/internal/core"
	"expensely/internal/storage"
)

// EventPublisher publishes expense lifecycle events to the optional
// event stream.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, action amqp.Action, expenseID, userID int64) error
}

// ExpenseService owns the expense lifecycle: create, get, update,
// delete, and filtered paginated listing. All operations are scoped to
// the authenticated user; foreign-owned rows are reported as not found.
type ExpenseService struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
}

func NewExpenseService(storage *storage.SQLiteRepository, publisher EventPublisher) *ExpenseService {
	return &ExpenseService{
		storage:   storage,
		publisher: publisher,
	}
}

// ExpenseInput carries the client-settable fields of an expense.
type ExpenseInput struct {
	Title       string
	Amount      core.Money
	Frequency   int64
	IsRecurring bool
	CategoryID  int64
}

// ExpenseUpdate is a partial field set for an update; nil means the
// field is untouched and keeps its stored value.
type ExpenseUpdate struct {
	Title       *string
	Amount      *core.Money
	Frequency   *int64
	IsRecurring *bool
	CategoryID  *int64
}

func (u ExpenseUpdate) touchesTotal() bool {
	return u.Amount != nil || u.Frequency != nil || u.IsRecurring != nil
}

// ExpensePage is one page of a filtered listing with its counts.
type ExpensePage struct {
	Items      []core.Expense
	TotalCount int64
	Page       int
	TotalPages int
}

var errExpenseNotFound = core.NotFound("expense not found")

// Create validates the input, computes the derived total, and persists
// the expense. The returned record includes the resolved category.
func (s *ExpenseService) Create(ctx context.Context, userID int64, in ExpenseInput) (*core.Expense, error) {
	e := core.Expense{
		UserID:      userID,
		Title:       in.Title,
		Amount:      in.Amount,
		Frequency:   in.Frequency,
		IsRecurring: in.IsRecurring,
		CategoryID:  in.CategoryID,
	}
	e.Recompute()

	if err := e.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.storage.GetCategory(ctx, in.CategoryID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, core.ErrInvalidCategory
		}
		return nil, core.Internal(fmt.Errorf("resolve category: %w", err))
	}

	created, err := s.storage.CreateExpense(ctx, e)
	if err != nil {
		return nil, core.Internal(fmt.Errorf("save expense: %w", err))
	}

	s.publishEvent(ctx, amqp.ActionCreated, created.ID, userID)
	return created, nil
}

// Get returns the expense only if it belongs to the user. Missing and
// foreign-owned ids report the same not-found error.
func (s *ExpenseService) Get(ctx context.Context, id, userID int64) (*core.Expense, error) {
	e, err := s.storage.GetExpense(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errExpenseNotFound
		}
		return nil, core.Internal(fmt.Errorf("get expense: %w", err))
	}
	if e.UserID != userID {
		return nil, errExpenseNotFound
	}
	return e, nil
}

// Update merges the partial field set onto the stored record inside a
// single transaction and recomputes the total whenever amount,
// frequency, or the recurrence flag is present in the update. Untouched
// fields keep their stored values.
func (s *ExpenseService) Update(ctx context.Context, id, userID int64, upd ExpenseUpdate) (*core.Expense, error) {
	if upd.CategoryID != nil {
		if _, err := s.storage.GetCategory(ctx, *upd.CategoryID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, core.ErrInvalidCategory
			}
			return nil, core.Internal(fmt.Errorf("resolve category: %w", err))
		}
	}

	updated, err := s.storage.UpdateExpense(ctx, id, func(e *core.Expense) error {
		if e.UserID != userID {
			return errExpenseNotFound
		}
		if upd.Title != nil {
			e.Title = *upd.Title
		}
		if upd.Amount != nil {
			e.Amount = *upd.Amount
		}
		if upd.Frequency != nil {
			e.Frequency = *upd.Frequency
		}
		if upd.IsRecurring != nil {
			e.IsRecurring = *upd.IsRecurring
		}
		if upd.CategoryID != nil {
			e.CategoryID = *upd.CategoryID
			e.Category = core.Category{ID: *upd.CategoryID}
		}
		if upd.touchesTotal() {
			e.Recompute()
		}
		return e.Validate()
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errExpenseNotFound
		}
		var appErr *core.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, core.Internal(fmt.Errorf("update expense: %w", err))
	}

	// Category name may be stale after a category change; re-read the
	// joined record.
	if upd.CategoryID != nil {
		if fresh, err := s.storage.GetExpense(ctx, updated.ID); err == nil {
			updated = fresh
		}
	}

	s.publishEvent(ctx, amqp.ActionUpdated, updated.ID, userID)
	return updated, nil
}

// Delete removes the expense if it belongs to the user. Deleting a
// missing or foreign-owned id reports not-found, never whether the row
// exists for someone else.
func (s *ExpenseService) Delete(ctx context.Context, id, userID int64) error {
	n, err := s.storage.DeleteExpenseOwned(ctx, id, userID)
	if err != nil {
		return core.Internal(fmt.Errorf("delete expense: %w", err))
	}
	if n == 0 {
		return errExpenseNotFound
	}

	s.publishEvent(ctx, amqp.ActionDeleted, id, userID)
	return nil
}

// List returns one page of the user's expenses, newest first. Pages past
// the end return an empty item list with accurate counts.
func (s *ExpenseService) List(ctx context.Context, userID int64, f storage.Filter, page, pageSize int) (*ExpensePage, error) {
	if page < 1 {
		return nil, core.Validation("invalid_page", "page must be at least 1")
	}
	if pageSize < 1 {
		return nil, core.Validation("invalid_page_size", "page size must be at least 1")
	}

	total, err := s.storage.CountExpenses(ctx, userID, f)
	if err != nil {
		return nil, core.Internal(fmt.Errorf("count expenses: %w", err))
	}

	items, err := s.storage.ListExpenses(ctx, userID, f, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, core.Internal(fmt.Errorf("list expenses: %w", err))
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	return &ExpensePage{
		Items:      items,
		TotalCount: total,
		Page:       page,
		TotalPages: totalPages,
	}, nil
}

// Categories lists the seeded category registry.
func (s *ExpenseService) Categories(ctx context.Context) ([]core.Category, error) {
	categories, err := s.storage.ListCategories(ctx)
	if err != nil {
		return nil, core.Internal(fmt.Errorf("list categories: %w", err))
	}
	return categories, nil
}

// publishEvent emits a lifecycle event when a publisher is configured.
// Publish failures are logged and never fail the request.
func (s *ExpenseService) publishEvent(ctx context.Context, action amqp.Action, expenseID, userID int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseEvent(ctx, action, expenseID, userID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"action", string(action),
			"expense_id", expenseID,
			"user_id", userID,
			"error", err)
	}
}

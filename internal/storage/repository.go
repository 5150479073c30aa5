package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"expensely/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound reports that a row does not exist. Callers must treat it
// the same for missing and foreign-owned rows.
var ErrNotFound = sql.ErrNoRows

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateUser inserts a new user and returns the stored record.
func (r *SQLiteRepository) CreateUser(ctx context.Context, username, email, passwordHash string) (*core.User, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		username, email, passwordHash, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	slog.InfoContext(ctx, "User created", "user_id", id, "username", username)
	return &core.User{ID: id, Username: username, Email: email, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// UserExists reports whether a user with the given username or email
// already exists. Single query so registration needs one round trip.
func (r *SQLiteRepository) UserExists(ctx context.Context, username, email string) (bool, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`,
		username, email,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check user existence: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?`, email))
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (*core.User, error) {
	var u core.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// ListCategories returns all seeded categories ordered by id.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (*core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Description)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

const expenseColumns = `e.id, e.user_id, e.title, e.amount_cents, e.frequency, e.is_recurring,
	e.total_cents, e.category_id, e.created_at, c.name, c.description`

const expenseSelect = `SELECT ` + expenseColumns + `
	FROM expenses e JOIN categories c ON c.id = e.category_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*core.Expense, error) {
	var e core.Expense
	err := row.Scan(&e.ID, &e.UserID, &e.Title, &e.Amount.Cents, &e.Frequency, &e.IsRecurring,
		&e.Total.Cents, &e.CategoryID, &e.CreatedAt, &e.Category.Name, &e.Category.Description)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan expense: %w", err)
	}
	e.Category.ID = e.CategoryID
	return &e, nil
}

// CreateExpense persists a new expense and returns the stored record
// with its resolved category.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (*core.Expense, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, title, amount_cents, frequency, is_recurring, total_cents, category_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Title, e.Amount.Cents, e.Frequency, e.IsRecurring, e.Total.Cents, e.CategoryID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"expense_id", id,
		"user_id", e.UserID,
		"amount_cents", e.Amount.Cents,
		"total_cents", e.Total.Cents)

	return r.GetExpense(ctx, id)
}

// GetExpense retrieves a single expense by id, category resolved.
func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (*core.Expense, error) {
	return scanExpense(r.db.QueryRowContext(ctx, expenseSelect+` WHERE e.id = ?`, id))
}

// UpdateExpense runs a read-merge-write cycle inside a single
// transaction: the current row is read, apply mutates it, and the merged
// record is written back. A concurrent delete that commits first makes
// the in-transaction read miss, so the update reports ErrNotFound
// instead of resurrecting the row.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, id int64, apply func(*core.Expense) error) (*core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update transaction: %w", err)
	}
	defer tx.Rollback()

	e, err := scanExpense(tx.QueryRowContext(ctx, expenseSelect+` WHERE e.id = ?`, id))
	if err != nil {
		return nil, err
	}

	if err := apply(e); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE expenses SET title = ?, amount_cents = ?, frequency = ?, is_recurring = ?, total_cents = ?, category_id = ?
		 WHERE id = ?`,
		e.Title, e.Amount.Cents, e.Frequency, e.IsRecurring, e.Total.Cents, e.CategoryID, e.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update expense: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	slog.InfoContext(ctx, "Expense updated",
		"expense_id", e.ID,
		"user_id", e.UserID,
		"total_cents", e.Total.Cents)

	return e, nil
}

// DeleteExpenseOwned deletes an expense only if it belongs to the given
// user, returning the number of rows removed. Zero rows means missing or
// foreign-owned; the two cases are indistinguishable on purpose.
func (r *SQLiteRepository) DeleteExpenseOwned(ctx context.Context, id, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Expense deleted", "expense_id", id, "user_id", userID)
	}
	return n, nil
}

// Filter restricts an expense listing. All set fields are combined with
// AND; zero values mean "no constraint".
type Filter struct {
	Title    string // case-insensitive substring match
	Category string // exact category name
	MinCents *int64 // inclusive
	MaxCents *int64 // inclusive
}

func (f Filter) where(userID int64) (string, []any) {
	clauses := []string{"e.user_id = ?"}
	args := []any{userID}

	if f.Title != "" {
		clauses = append(clauses, "LOWER(e.title) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Title)+"%")
	}
	if f.Category != "" {
		clauses = append(clauses, "c.name = ?")
		args = append(args, f.Category)
	}
	if f.MinCents != nil {
		clauses = append(clauses, "e.amount_cents >= ?")
		args = append(args, *f.MinCents)
	}
	if f.MaxCents != nil {
		clauses = append(clauses, "e.amount_cents <= ?")
		args = append(args, *f.MaxCents)
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListExpenses returns a page of a user's expenses matching the filter,
// newest first. The created_at DESC ordering is part of the API
// contract; id breaks ties for rows created in the same instant.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64, f Filter, limit, offset int) ([]core.Expense, error) {
	where, args := f.where(userID)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx,
		expenseSelect+where+` ORDER BY e.created_at DESC, e.id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

// CountExpenses returns the total number of rows the filter matches,
// ignoring pagination.
func (r *SQLiteRepository) CountExpenses(ctx context.Context, userID int64, f Filter) (int64, error) {
	where, args := f.where(userID)

	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expenses e JOIN categories c ON c.id = e.category_id`+where, args...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count expenses: %w", err)
	}
	return n, nil
}

package core

import (
	"math"
	"net/mail"
	"strings"
	"time"
)

type (
	// Money is an amount in cents. All arithmetic happens on cents to
	// avoid floating-point drift.
	Money struct {
		Cents int64
	}

	// User is an identity record. PasswordHash never leaves the service
	// boundary.
	User struct {
		ID           int64
		Username     string
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}

	// Category is a classification tag. Categories are seeded by
	// migration and read-only in normal operation.
	Category struct {
		ID          int64
		Name        string
		Description string
	}

	// Expense is the central mutable entity. Total is derived and never
	// independently settable; UserID is immutable after creation.
	Expense struct {
		ID          int64
		UserID      int64
		Title       string
		Amount      Money
		Frequency   int64
		IsRecurring bool
		Total       Money
		CategoryID  int64
		Category    Category
		CreatedAt   time.Time
	}
)

const maxTitleLength = 200

// ComputeTotal applies the derived-total rule: the plain amount for a
// one-off expense, amount times frequency for a recurring one.
func ComputeTotal(amount Money, frequency int64, recurring bool) Money {
	if recurring {
		return Money{Cents: amount.Cents * frequency}
	}
	return amount
}

// Recompute refreshes the derived total from the expense's current
// amount, frequency and recurrence flag.
func (e *Expense) Recompute() {
	e.Total = ComputeTotal(e.Amount, e.Frequency, e.IsRecurring)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(e.Title) > maxTitleLength {
		return Validation("title_too_long", "title too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Frequency < 1 {
		return ErrInvalidFrequency
	}
	// amount * frequency must stay inside int64 cents
	if e.IsRecurring && e.Frequency > math.MaxInt64/e.Amount.Cents {
		return ErrInvalidFrequency
	}
	if e.CategoryID < 1 {
		return ErrInvalidCategory
	}
	return nil
}

// ValidateRegistration checks the registration inputs: username at least
// 3 characters, a parseable email address, password at least 6 characters.
func ValidateRegistration(username, email, password string) error {
	if len(strings.TrimSpace(username)) < 3 {
		return Validation("username_too_short", "username must be at least 3 characters")
	}
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if len(password) < 6 {
		return Validation("password_too_short", "password must be at least 6 characters")
	}
	return nil
}

func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return Validation("invalid_email", "invalid email address")
	}
	return nil
}

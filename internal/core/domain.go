package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO date format used on the wire.
const DateLayout = "2006-01-02"

// Uncategorized is shown for expenses without a resolvable category.
const Uncategorized = "uncategorized"

type (
	// Record is anything with a server-assigned identifier.
	Record interface {
		RecordID() int64
	}

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Expense struct {
		ID          int64  `json:"id"`
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		Date        Date   `json:"date"`
		Category    *int64 `json:"category"` // weak reference, may dangle
	}

	// ExpenseFields is the create/replace payload for an expense.
	ExpenseFields struct {
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		Date        Date   `json:"date"`
		Category    *int64 `json:"category"`
	}

	Category struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	CategoryFields struct {
		Name string `json:"name"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty category name")
)

func (e Expense) RecordID() int64  { return e.ID }
func (c Category) RecordID() int64 { return c.ID }

// Fields returns the editable part of the expense.
func (e Expense) Fields() ExpenseFields {
	return ExpenseFields{
		Description: e.Description,
		Amount:      e.Amount,
		Date:        e.Date,
		Category:    e.Category,
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO (YYYY-MM-DD) date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// Today returns the current UTC date.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e ExpenseFields) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if len(e.Description) > 255 {
		return errors.New("description too long (max 255 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	return e.Date.Validate()
}

func (c CategoryFields) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("category name too long (max 100 characters)")
	}
	return nil
}

// CategoryIndex resolves category references to names at render time.
type CategoryIndex map[int64]string

// IndexCategories builds a lookup table from a category listing.
func IndexCategories(cats []Category) CategoryIndex {
	idx := make(CategoryIndex, len(cats))
	for _, c := range cats {
		idx[c.ID] = c.Name
	}
	return idx
}

// NameOf returns the category name for ref, or Uncategorized when ref is
// nil or points to a category that no longer exists.
func (idx CategoryIndex) NameOf(ref *int64) string {
	if ref == nil {
		return Uncategorized
	}
	if name, ok := idx[*ref]; ok {
		return name
	}
	return Uncategorized
}

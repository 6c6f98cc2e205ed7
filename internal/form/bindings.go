package form

import (
	"errors"
	"strconv"
	"strings"

	"domu/internal/core"
)

const (
	FieldDescription = "description"
	FieldAmount      = "amount"
	FieldDate        = "date"
	FieldCategory    = "category"
	FieldName        = "name"
)

const msgRequired = "this field is required"

// ExpenseBinding maps expense drafts. New drafts are dated today.
type ExpenseBinding struct {
	// Today overrides the current date, mainly for tests.
	Today func() core.Date
}

func (b ExpenseBinding) today() core.Date {
	if b.Today != nil {
		return b.Today()
	}
	return core.Today()
}

func (b ExpenseBinding) Blank() map[string]string {
	return map[string]string{
		FieldDescription: "",
		FieldAmount:      "",
		FieldDate:        b.today().String(),
		FieldCategory:    "",
	}
}

func (ExpenseBinding) Values(e core.Expense) map[string]string {
	category := ""
	if e.Category != nil {
		category = strconv.FormatInt(*e.Category, 10)
	}
	return map[string]string{
		FieldDescription: e.Description,
		FieldAmount:      e.Amount.String(),
		FieldDate:        e.Date.String(),
		FieldCategory:    category,
	}
}

func (ExpenseBinding) Parse(values map[string]string) (core.ExpenseFields, error) {
	var f core.ExpenseFields

	description := strings.TrimSpace(values[FieldDescription])
	amount := strings.TrimSpace(values[FieldAmount])
	date := strings.TrimSpace(values[FieldDate])
	for _, req := range []struct{ field, value string }{
		{FieldDescription, description},
		{FieldAmount, amount},
		{FieldDate, date},
	} {
		if req.value == "" {
			return f, &ValidationError{Field: req.field, Message: msgRequired}
		}
	}

	cents, err := core.ParseDecimalToCents(amount)
	if err != nil {
		return f, &ValidationError{Field: FieldAmount, Message: "must be a positive number"}
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return f, &ValidationError{Field: FieldDate, Message: "must be a date formatted as YYYY-MM-DD"}
	}

	f = core.ExpenseFields{
		Description: description,
		Amount:      core.Money{Cents: cents},
		Date:        d,
	}
	if raw := strings.TrimSpace(values[FieldCategory]); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return core.ExpenseFields{}, &ValidationError{Field: FieldCategory, Message: "must be a category id"}
		}
		f.Category = &id
	}

	if err := f.Validate(); err != nil {
		return core.ExpenseFields{}, &ValidationError{Field: fieldOf(err), Message: err.Error()}
	}
	return f, nil
}

// CategoryBinding maps category drafts.
type CategoryBinding struct{}

func (CategoryBinding) Blank() map[string]string {
	return map[string]string{FieldName: ""}
}

func (CategoryBinding) Values(c core.Category) map[string]string {
	return map[string]string{FieldName: c.Name}
}

func (CategoryBinding) Parse(values map[string]string) (core.CategoryFields, error) {
	f := core.CategoryFields{Name: strings.TrimSpace(values[FieldName])}
	if f.Name == "" {
		return core.CategoryFields{}, &ValidationError{Field: FieldName, Message: msgRequired}
	}
	if err := f.Validate(); err != nil {
		return core.CategoryFields{}, &ValidationError{Field: FieldName, Message: err.Error()}
	}
	return f, nil
}

func fieldOf(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return FieldAmount
	case errors.Is(err, core.ErrInvalidDate):
		return FieldDate
	default:
		return FieldDescription
	}
}

package masterdata

import (
	"context"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	"catreg/internal/core/apperror"
	"catreg/internal/metadata"
)

// UniquenessChecker answers whether a value is free among non-deleted rows.
type UniquenessChecker interface {
	IsUnique(ctx context.Context, def metadata.EntityDef, field string, value any, excludeID *int64) (bool, error)
}

// Result is the outcome of validating one submission.
// Values holds only fields that passed or were defaulted.
type Result struct {
	Values map[string]any
	Errors []apperror.FieldError
}

// OK reports whether the submission may be persisted.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

func (r *Result) fail(field, msg string) {
	r.Errors = append(r.Errors, apperror.FieldError{Field: field, Message: msg})
}

// empty applies the required and default rules to a blank field.
func (r *Result) empty(f metadata.FieldDef) {
	if f.Required {
		r.fail(f.Name, f.DisplayLabel()+" is required")
		return
	}
	if f.Default != nil {
		r.Values[f.Name] = coerceDefault(f, *f.Default)
	}
}

// Validator turns raw form input into storage-ready values.
type Validator struct {
	unique UniquenessChecker
	policy *bluemonday.Policy
}

func NewValidator(unique UniquenessChecker) *Validator {
	return &Validator{
		unique: unique,
		policy: bluemonday.StrictPolicy(),
	}
}

// Validate processes every declared field in order. The returned error is
// reserved for storage failures during uniqueness checks; field problems are
// reported in Result.Errors.
func (v *Validator) Validate(ctx context.Context, def metadata.EntityDef, input Input, excludeID *int64) (Result, error) {
	res := Result{Values: make(map[string]any, len(def.Fields))}

	for _, f := range def.Fields {
		raw, present := input[f.Name]

		if f.Type == metadata.TypeCheckbox {
			res.Values[f.Name] = present
			continue
		}

		raw = strings.TrimSpace(raw)
		if raw == "" {
			res.empty(f)
			continue
		}

		switch f.Type {
		case metadata.TypeNumber:
			res.Values[f.Name] = toNumber(raw)

		case metadata.TypeSelect:
			if f.IsForeign() {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					res.fail(f.Name, f.DisplayLabel()+" has an invalid selection")
					continue
				}
				res.Values[f.Name] = id
				continue
			}
			if len(f.Options) > 0 && !f.Options.Has(raw) {
				res.fail(f.Name, f.DisplayLabel()+" has an invalid selection")
				continue
			}
			res.Values[f.Name] = raw

		default:
			// Markup-only input sanitizes to nothing and counts as empty.
			clean := strings.TrimSpace(v.policy.Sanitize(raw))
			if clean == "" {
				res.empty(f)
				continue
			}
			valid := true

			if f.Unique {
				free, err := v.unique.IsUnique(ctx, def, f.Name, clean, excludeID)
				if err != nil {
					return Result{}, err
				}
				if !free {
					res.fail(f.Name, apperror.DuplicateMessage(f.DisplayLabel()))
					valid = false
				}
			}
			if re := f.Regexp(); re != nil && !re.MatchString(clean) {
				res.fail(f.Name, f.DisplayLabel()+" has an invalid format")
				valid = false
			}
			if valid {
				res.Values[f.Name] = clean
			}
		}
	}

	return res, nil
}

// Non-numeric input becomes zero rather than an error.
func toNumber(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func coerceDefault(f metadata.FieldDef, def string) any {
	switch f.Type {
	case metadata.TypeNumber:
		return toNumber(def)
	case metadata.TypeSelect:
		if f.IsForeign() {
			if id, err := strconv.ParseInt(def, 10, 64); err == nil {
				return id
			}
		}
	}
	return def
}

package masterdata

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catreg/internal/core/apperror"
	"catreg/internal/metadata"
)

func mustDef(t *testing.T, key string) metadata.EntityDef {
	t.Helper()
	reg, err := metadata.LoadDefault()
	require.NoError(t, err)
	def, err := reg.Resolve(key)
	require.NoError(t, err)
	return def
}

func fieldErrors(res Result) map[string][]string {
	out := make(map[string][]string)
	for _, fe := range res.Errors {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

func TestValidator_CheckboxOmittedIsFalse(t *testing.T) {
	v := NewValidator(newMemStore())
	def := mustDef(t, "drugs")

	res, err := v.Validate(context.Background(), def, Input{"name": "Midazolam", "drug_class": "sedative"}, nil)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, false, res.Values["is_controlled"])

	res, err = v.Validate(context.Background(), def, Input{"name": "Fentanyl", "drug_class": "analgesic", "is_controlled": ""}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, res.Values["is_controlled"])
}

func TestValidator_Required(t *testing.T) {
	v := NewValidator(newMemStore())
	def := mustDef(t, "drugs")

	res, err := v.Validate(context.Background(), def, Input{"name": "   "}, nil)
	require.NoError(t, err)
	errs := fieldErrors(res)
	assert.Equal(t, []string{"Drug name is required"}, errs["name"])
	assert.Equal(t, []string{"Class is required"}, errs["drug_class"])
	assert.NotContains(t, res.Values, "name")
}

func TestValidator_ZeroIsNotEmpty(t *testing.T) {
	v := NewValidator(newMemStore())
	def := metadata.EntityDef{
		Key: "doses", Collection: "doses",
		Fields: []metadata.FieldDef{
			{Name: "name", Type: metadata.TypeText},
			{Name: "amount", Label: "Amount", Type: metadata.TypeNumber, Required: true},
		},
	}

	res, err := v.Validate(context.Background(), def, Input{"amount": "0"}, nil)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.True(t, decimal.Zero.Equal(res.Values["amount"].(decimal.Decimal)))
	assert.NotContains(t, res.Values, "name")
}

func TestValidator_DefaultsForOptionalFields(t *testing.T) {
	v := NewValidator(newMemStore())

	res, err := v.Validate(context.Background(), mustDef(t, "sentinel_events"), Input{"name": "Air embolism"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "moderate", res.Values["severity"])

	res, err = v.Validate(context.Background(), mustDef(t, "catheter_types"), Input{"name": "PICC"}, nil)
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(res.Values["french_size"].(decimal.Decimal)))
	assert.NotContains(t, res.Values, "code")
}

func TestValidator_NumberCoercion(t *testing.T) {
	v := NewValidator(newMemStore())
	def := mustDef(t, "drugs")

	tests := []struct {
		raw  string
		want string
	}{
		{"2.5", "2.5"},
		{" 10 ", "10"},
		{"abc", "0"},
		{"1,5", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			res, err := v.Validate(context.Background(), def, Input{"name": "X", "drug_class": "other", "default_dose": tt.raw}, nil)
			require.NoError(t, err)
			require.True(t, res.OK())
			assert.Equal(t, tt.want, res.Values["default_dose"].(decimal.Decimal).String())
		})
	}
}

func TestValidator_UniqueAndPatternBothReported(t *testing.T) {
	store := newMemStore()
	def := mustDef(t, "drugs")
	_, err := store.Create(context.Background(), def, map[string]any{"name": "Dup!"})
	require.NoError(t, err)

	v := NewValidator(store)
	res, err := v.Validate(context.Background(), def, Input{"name": "Dup!", "drug_class": "other"}, nil)
	require.NoError(t, err)

	errs := fieldErrors(res)
	require.Len(t, errs["name"], 2)
	assert.Equal(t, apperror.DuplicateMessage("Drug name"), errs["name"][0])
	assert.Equal(t, "Drug name has an invalid format", errs["name"][1])
	assert.NotContains(t, res.Values, "name")
}

func TestValidator_UniqueExcludesSelf(t *testing.T) {
	store := newMemStore()
	def := mustDef(t, "comorbidities")
	id, err := store.Create(context.Background(), def, map[string]any{"name": "Diabetes"})
	require.NoError(t, err)

	v := NewValidator(store)
	res, err := v.Validate(context.Background(), def, Input{"name": "Diabetes"}, &id)
	require.NoError(t, err)
	assert.True(t, res.OK())
}

func TestValidator_Sanitizes(t *testing.T) {
	v := NewValidator(newMemStore())

	res, err := v.Validate(context.Background(), mustDef(t, "comorbidities"), Input{"name": "  <b>Asthma</b> "}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Asthma", res.Values["name"])
}

func TestValidator_MarkupOnlyIsEmpty(t *testing.T) {
	v := NewValidator(newMemStore())

	res, err := v.Validate(context.Background(), mustDef(t, "comorbidities"), Input{
		"name":        "<script>alert(1)</script>",
		"description": "<img src=x>",
	}, nil)
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, []string{"Name is required"}, fieldErrors(res)["name"])
	assert.NotContains(t, res.Values, "name")
	assert.NotContains(t, res.Values, "description")
}

func TestValidator_Select(t *testing.T) {
	v := NewValidator(newMemStore())

	res, err := v.Validate(context.Background(), mustDef(t, "drugs"), Input{"name": "X", "drug_class": "vitamin"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Class has an invalid selection"}, fieldErrors(res)["drug_class"])

	surgeries := mustDef(t, "surgeries")
	res, err = v.Validate(context.Background(), surgeries, Input{"name": "Appendectomy", "specialty_id": "42"}, nil)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, int64(42), res.Values["specialty_id"])

	res, err = v.Validate(context.Background(), surgeries, Input{"name": "Appendectomy", "specialty_id": "general"}, nil)
	require.NoError(t, err)
	assert.Contains(t, fieldErrors(res), "specialty_id")
}

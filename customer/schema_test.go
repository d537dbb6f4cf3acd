package customer

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func testSchema() Schema {
	return Schema{Fields: []Field{
		{Name: "age", Kind: Numeric, Min: ptr(18), Max: ptr(120), Default: 35, Step: 1, Integer: true},
		{Name: "job", Kind: Categorical, Options: []string{"admin.", "blue-collar", "retired"}},
		{Name: "emp.var.rate", Kind: Numeric, Default: 1.0, Step: 0.01},
	}}
}

func TestValidateSchema_Valid(t *testing.T) {
	if err := ValidateSchema(testSchema()); err != nil {
		t.Fatalf("ValidateSchema() = %v, want nil", err)
	}
}

func TestValidateSchema_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		schema  Schema
		wantMsg string
	}{
		{"empty", Schema{}, "empty"},
		{"bad identifier", Schema{Fields: []Field{{Name: "1age", Kind: Numeric}}}, "1age"},
		{"duplicate", Schema{Fields: []Field{{Name: "age", Kind: Numeric}, {Name: "age", Kind: Numeric}}}, "more than once"},
		{"no options", Schema{Fields: []Field{{Name: "job", Kind: Categorical}}}, "at least one option"},
		{"duplicate option", Schema{Fields: []Field{{Name: "job", Kind: Categorical, Options: []string{"a", "a"}}}}, "twice"},
		{"inverted range", Schema{Fields: []Field{{Name: "age", Kind: Numeric, Min: ptr(10), Max: ptr(5), Default: 7}}}, "greater than max"},
		{"default below min", Schema{Fields: []Field{{Name: "age", Kind: Numeric, Min: ptr(18), Default: 3}}}, "below min"},
		{"unknown kind", Schema{Fields: []Field{{Name: "age", Kind: "date"}}}, "invalid kind"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSchema(tc.schema)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("Expected error containing %q, got: %v", tc.wantMsg, err)
			}
		})
	}
}

func TestValidateSchema_TooManyFields(t *testing.T) {
	var fields []Field
	for i := 0; i < 201; i++ {
		fields = append(fields, Field{Name: "f" + strings.Repeat("x", i%50) + string(rune('a'+i%26)) + string(rune('a'+i/26)), Kind: Numeric})
	}
	err := ValidateSchema(Schema{Fields: fields})
	if err == nil || !strings.Contains(err.Error(), "200") {
		t.Fatalf("Expected max-fields error, got: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	rec := testSchema().Defaults()
	if rec["age"] != 35.0 {
		t.Errorf("age default = %v, want 35", rec["age"])
	}
	if rec["job"] != "admin." {
		t.Errorf("job default = %v, want admin.", rec["job"])
	}
}

func TestParseForm(t *testing.T) {
	values := url.Values{
		"age":          {"42"},
		"job":          {"retired"},
		"emp.var.rate": {""},
	}

	rec, err := testSchema().ParseForm(values)
	if err != nil {
		t.Fatalf("ParseForm() = %v", err)
	}
	if rec["age"] != 42.0 {
		t.Errorf("age = %v, want 42", rec["age"])
	}
	if rec["job"] != "retired" {
		t.Errorf("job = %v, want retired", rec["job"])
	}
	if rec["emp.var.rate"] != 1.0 {
		t.Errorf("emp.var.rate = %v, want default 1.0", rec["emp.var.rate"])
	}
}

func TestParseForm_CategoricalNotCheckedAgainstVocabulary(t *testing.T) {
	rec, err := testSchema().ParseForm(url.Values{"job": {"astronaut"}})
	if err != nil {
		t.Fatalf("ParseForm() = %v", err)
	}
	if rec["job"] != "astronaut" {
		t.Errorf("job = %v, want astronaut passed through", rec["job"])
	}
}

func TestParseForm_MissingCategoricalOmitted(t *testing.T) {
	rec, err := testSchema().ParseForm(url.Values{})
	if err != nil {
		t.Fatalf("ParseForm() = %v", err)
	}
	if _, ok := rec["job"]; ok {
		t.Error("missing categorical field should be omitted from record")
	}
}

func TestParseForm_NumericErrors(t *testing.T) {
	testCases := []struct {
		name   string
		value  string
		reason string
	}{
		{"not a number", "abc", "must be a number"},
		{"below min", "12", "at least"},
		{"above max", "200", "at most"},
		{"fractional", "30.5", "whole number"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := testSchema().ParseForm(url.Values{"age": {tc.value}})
			var formErr *FormError
			if !errors.As(err, &formErr) {
				t.Fatalf("Expected *FormError, got %v", err)
			}
			if formErr.Field != "age" {
				t.Errorf("Field = %q, want age", formErr.Field)
			}
			if !strings.Contains(formErr.Reason, tc.reason) {
				t.Errorf("Reason = %q, want it to contain %q", formErr.Reason, tc.reason)
			}
		})
	}
}

func TestRecordFloat(t *testing.T) {
	rec := Record{"a": 1, "b": 2.5, "c": "x"}
	if v, err := rec.Float("a"); err != nil || v != 1 {
		t.Errorf("Float(a) = %v, %v", v, err)
	}
	if v, err := rec.Float("b"); err != nil || v != 2.5 {
		t.Errorf("Float(b) = %v, %v", v, err)
	}
	if _, err := rec.Float("c"); err == nil {
		t.Error("Float(c) should fail for string value")
	}
	if _, err := rec.Float("missing"); err == nil {
		t.Error("Float(missing) should fail")
	}
}

func TestRecordString(t *testing.T) {
	rec := Record{"job": "admin.", "age": 30.0}
	if s, ok := rec.String("job"); !ok || s != "admin." {
		t.Errorf("String(job) = %q, %v", s, ok)
	}
	if _, ok := rec.String("age"); ok {
		t.Error("String(age) should fail for numeric value")
	}
	if _, ok := rec.String("missing"); ok {
		t.Error("String(missing) should fail")
	}
}

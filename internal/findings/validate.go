package findings

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// SchemaViolation reports one record that does not satisfy the finding
// schema. Violations drop the record, never the batch.
type SchemaViolation struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *SchemaViolation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("record %d: %s: %s", e.Index, e.Field, e.Reason)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			value := fl.Field().String()
			if value == "" {
				return true // let required report empties
			}
			return KnownCategory(Category(value))
		})
		validate = v
	})
	return validate
}

// Validate checks f against the schema. index is the record position used in
// the returned *SchemaViolation.
func Validate(f Finding, index int) error {
	if strings.TrimSpace(f.FilePath) == "" {
		return &SchemaViolation{Index: index, Field: "file_path", Reason: "required"}
	}
	if strings.TrimSpace(f.Description) == "" {
		return &SchemaViolation{Index: index, Field: "description", Reason: "required"}
	}
	if f.LineEnd < f.LineStart {
		return &SchemaViolation{Index: index, Field: "line_end", Reason: fmt.Sprintf("line_end %d before line_start %d", f.LineEnd, f.LineStart)}
	}
	err := structValidator().Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &SchemaViolation{Index: index, Reason: err.Error()}
	}
	fe := verrs[0]
	return &SchemaViolation{Index: index, Field: jsonName(fe.Field()), Reason: describe(fe)}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "category":
		return fmt.Sprintf("unknown category %q", fe.Value())
	case "gtefield":
		return "must not precede " + jsonName(fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("out of range (%s %s)", fe.Tag(), fe.Param())
	default:
		return fe.Tag()
	}
}

// jsonName converts a Go field name like LineStart to line_start.
func jsonName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

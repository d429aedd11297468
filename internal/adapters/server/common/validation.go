package common

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/hylla/waypoint/internal/domain"
)

// requestValidate checks transport requests before they reach app.Service.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New(validator.WithRequiredStructEnabled())
	requestValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return toSnake(f.Name)
		}
		return name
	})
	_ = requestValidate.RegisterValidation("milestone_status", func(fl validator.FieldLevel) bool {
		return domain.IsValidStatus(domain.MilestoneStatus(canonicalEnum(fl.Field().String())))
	})
	_ = requestValidate.RegisterValidation("milestone_priority", func(fl validator.FieldLevel) bool {
		return domain.IsValidPriority(domain.Priority(canonicalEnum(fl.Field().String())))
	})
	_ = requestValidate.RegisterValidation("milestone_color", func(fl validator.FieldLevel) bool {
		return domain.IsValidColor(strings.TrimSpace(fl.Field().String()))
	})
	_ = requestValidate.RegisterValidation("progress_mode", func(fl validator.FieldLevel) bool {
		switch domain.ProgressMode(canonicalEnum(fl.Field().String())) {
		case domain.ProgressModeAuto, domain.ProgressModeManual:
			return true
		}
		return false
	})
	_ = requestValidate.RegisterValidation("task_status", func(fl validator.FieldLevel) bool {
		return domain.IsValidTaskStatus(domain.NormalizeTaskStatus(domain.TaskStatus(fl.Field().String())))
	})
}

// validateRequest runs struct validation and folds field failures into ErrInvalidRequest.
func validateRequest(req any) error {
	err := requestValidate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(parts, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "datetime":
		return field + " must be a YYYY-MM-DD date"
	case "milestone_color":
		return field + " must match #RRGGBB"
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

// canonicalEnum mirrors domain enum normalization for pre-checks.
func canonicalEnum(v string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "-", "_")
}

// toSnake turns a Go field name such as DependsOnMilestoneID into depends_on_milestone_id.
func toSnake(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

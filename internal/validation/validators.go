package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/benvon/task-assistant/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Report JSON field names so errors match the request body
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	if err := Validate.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(fmt.Sprintf("failed to register notblank validator: %v", err))
	}
	if err := Validate.RegisterValidation("task_status", validateTaskStatus); err != nil {
		panic(fmt.Sprintf("failed to register task_status validator: %v", err))
	}
}

// ValidationError reports which submitted field was rejected and why
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// validateTaskStatus validates that a string is a valid TaskStatus enum value
func validateTaskStatus(fl validator.FieldLevel) bool {
	return models.TaskStatus(fl.Field().String()).IsValid()
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateSubmission sanitizes and validates a task submission. It is pure:
// nothing is called and nothing is stored.
func ValidateSubmission(description, userStory, context string) (models.TaskSubmission, error) {
	sub := models.TaskSubmission{
		Description: SanitizeText(description),
		UserStory:   SanitizeText(userStory),
		Context:     SanitizeText(context),
	}
	if err := Validate.Struct(sub); err != nil {
		return models.TaskSubmission{}, toValidationError(err)
	}
	return sub, nil
}

// ValidateTaskStatus validates a TaskStatus string value, accepting loose spellings
// such as "in_progress", and returns the canonical status.
func ValidateTaskStatus(value string) (models.TaskStatus, error) {
	status, ok := models.ParseTaskStatus(value)
	if !ok {
		return "", &ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("must be one of %q, %q or %q", models.TaskStatusOpen, models.TaskStatusInProgress, models.TaskStatusDone),
		}
	}
	return status, nil
}

// ValidateCategory requires a known category and returns its canonical spelling.
func ValidateCategory(value string) (models.Category, error) {
	category, ok := models.ParseCategory(value)
	if !ok {
		return "", &ValidationError{Field: "category", Reason: "unknown category " + fmt.Sprintf("%q", value)}
	}
	return category, nil
}

// ValidatePriority requires a known priority and returns its canonical spelling.
func ValidatePriority(value string) (models.Priority, error) {
	priority, ok := models.ParsePriority(value)
	if !ok {
		return "", &ValidationError{Field: "priority", Reason: "unknown priority " + fmt.Sprintf("%q", value)}
	}
	return priority, nil
}

// ValidatePatch sanitizes the text fields of a patch and canonicalizes its enums.
func ValidatePatch(patch models.TaskPatch) (models.TaskPatch, error) {
	if patch.Empty() {
		return patch, &ValidationError{Field: "body", Reason: "no fields to update"}
	}
	if patch.Description != nil {
		d := SanitizeText(*patch.Description)
		if err := Validate.Var(d, "required,notblank,min=5,max=10000"); err != nil {
			return patch, fieldError("description", err)
		}
		patch.Description = &d
	}
	if patch.UserStory != nil {
		s := SanitizeText(*patch.UserStory)
		if err := Validate.Var(s, "max=10000"); err != nil {
			return patch, fieldError("user_story", err)
		}
		patch.UserStory = &s
	}
	if patch.Context != nil {
		c := SanitizeText(*patch.Context)
		if err := Validate.Var(c, "max=10000"); err != nil {
			return patch, fieldError("context", err)
		}
		patch.Context = &c
	}
	if patch.Category != nil {
		c, err := ValidateCategory(string(*patch.Category))
		if err != nil {
			return patch, err
		}
		patch.Category = &c
	}
	if patch.Priority != nil {
		p, err := ValidatePriority(string(*patch.Priority))
		if err != nil {
			return patch, err
		}
		patch.Priority = &p
	}
	if patch.Status != nil {
		s, err := ValidateTaskStatus(string(*patch.Status))
		if err != nil {
			return patch, err
		}
		patch.Status = &s
	}
	return patch, nil
}

// toValidationError reports the first failing field
func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Field: fe.Field(), Reason: reason(fe)}
	}
	return &ValidationError{Field: "body", Reason: err.Error()}
}

func fieldError(field string, err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return &ValidationError{Field: field, Reason: reason(fieldErrs[0])}
	}
	return &ValidationError{Field: field, Reason: err.Error()}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required and must not be blank"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// Package validation checks user-supplied input structs using struct tags.
package validation

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	"teamdesk/internal/apperr"
	"teamdesk/internal/domain"
)

var (
	defaultValidator = validator.New()
	defaultEn        = en.New()
	uni              = ut.New(defaultEn, defaultEn)
	trans, _         = uni.GetTranslator(defaultEn.Locale())

	personNameRegex = regexp.MustCompile(`^[\p{L}\p{M}][\p{L}\p{M} .'\-]*$`)
)

// Violation describes a single failed rule.
type Violation struct {
	Tag         string
	Field       string
	Err         error
	Description string
}

func (v Violation) Error() string {
	return v.Description
}

type StructError struct {
	Violations []Violation
}

func (s *StructError) Error() string {
	parts := make([]string, 0, len(s.Violations))
	for _, v := range s.Violations {
		parts = append(parts, v.Error())
	}
	return strings.Join(parts, "; ")
}

// Unwrap lets callers match validation failures with apperr.ErrValidation.
func (s *StructError) Unwrap() error {
	return apperr.ErrValidation
}

func RegisterValidation(tag string, fn validator.Func) error {
	if err := defaultValidator.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("register validation: %w", err)
	}
	return nil
}

func RegisterTranslation(tag, msg string) error {
	if err := defaultValidator.RegisterTranslation(
		tag,
		trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, msg, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	); err != nil {
		return fmt.Errorf("register translation: %w", err)
	}
	return nil
}

// ValidateStruct runs the struct-tag rules of s and returns *StructError on failure.
func ValidateStruct(s any) error {
	err := defaultValidator.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperr.Wrap(apperr.KindInternal, "validate", err)
	}
	out := &StructError{}
	for _, e := range verrs {
		out.Violations = append(out.Violations, Violation{
			Tag:         e.Tag(),
			Field:       e.Field(),
			Err:         e,
			Description: e.Translate(trans),
		})
	}
	return out
}

// Check validates s and reports failures as an apperr validation error for op.
func Check(op string, s any) error {
	err := ValidateStruct(s)
	if err == nil {
		return nil
	}
	if se, ok := err.(*StructError); ok {
		return apperr.Validation(op, se.Error())
	}
	return err
}

func IsDate(s string) bool {
	_, err := time.Parse(domain.DateLayout, s)
	return err == nil
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return strings.ToLower(fld.Name)
	}
	return name
}

func init() {
	defaultValidator.RegisterTagNameFunc(jsonTagName)

	if err := entranslations.RegisterDefaultTranslations(defaultValidator, trans); err != nil {
		fmt.Fprintln(os.Stderr, "validation register default translations:", err)
		os.Exit(1)
	}

	rules := []struct {
		tag string
		fn  validator.Func
		msg string
	}{
		{"isodate", func(fl validator.FieldLevel) bool {
			return IsDate(fl.Field().String())
		}, "{0} must be a date in YYYY-MM-DD form"},
		{"role", func(fl validator.FieldLevel) bool {
			return domain.Role(fl.Field().String()).Valid()
		}, "{0} must be dev-team or admin"},
		{"personname", func(fl validator.FieldLevel) bool {
			return personNameRegex.MatchString(strings.TrimSpace(fl.Field().String()))
		}, "{0} must only contain letters, spaces, hyphens, periods and apostrophes"},
		{"notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		}, "{0} is a required field"},
	}
	for _, r := range rules {
		if err := RegisterValidation(r.tag, r.fn); err != nil {
			fmt.Fprintln(os.Stderr, "validation", r.tag+":", err)
			os.Exit(1)
		}
		if err := RegisterTranslation(r.tag, r.msg); err != nil {
			fmt.Fprintln(os.Stderr, "validation", r.tag+":", err)
			os.Exit(1)
		}
	}
}

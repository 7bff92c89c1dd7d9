// Package validator provides validation infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package validator

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

var weekdayCodes = map[string]struct{}{
	"mon": {}, "tue": {}, "wed": {}, "thu": {}, "fri": {}, "sat": {}, "sun": {},
}

// Validator wraps the go-playground validator for structured validation.
type Validator struct {
	v *validator.Validate
}

// New creates a new Validator instance with the application's custom tags:
//
//	iana_tz  - value resolves with time.LoadLocation
//	clock    - "HH:MM" 24h wall clock
//	weekday  - three-letter lowercase weekday code (mon..sun)
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("iana_tz", validateTimezone)
	_ = v.RegisterValidation("clock", validateClock)
	_ = v.RegisterValidation("weekday", validateWeekday)
	return &Validator{v: v}
}

// Struct validates a struct based on validation tags.
func (val *Validator) Struct(s any) error {
	return val.v.Struct(s)
}

// Var validates a single variable against a tag.
func (val *Validator) Var(field any, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation registers a custom validation function.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}

func validateTimezone(fl validator.FieldLevel) bool {
	name := strings.TrimSpace(fl.Field().String())
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

func validateClock(fl validator.FieldLevel) bool {
	return clockPattern.MatchString(strings.TrimSpace(fl.Field().String()))
}

func validateWeekday(fl validator.FieldLevel) bool {
	_, ok := weekdayCodes[strings.ToLower(strings.TrimSpace(fl.Field().String()))]
	return ok
}

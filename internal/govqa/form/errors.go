package form

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrSubmissionInFlight = errors.New("govqa form: a submission is already in flight")
	ErrFormClosed         = errors.New("govqa form: form already succeeded or failed")
	ErrNoFields           = errors.New("govqa form: no fields found on page")
	ErrReferenceNotFound  = errors.New("govqa form: reference number not found")
)

// FormValidationError is a set of values the portal rejected. Messages holds
// the portal's own wording.
type FormValidationError struct {
	Message  string
	Messages []string
}

func (e *FormValidationError) Error() string {
	return "govqa form: " + e.Message
}

// IncorrectCaptchaError means the captcha code was wrong. The form has a new
// challenge when this is returned.
type IncorrectCaptchaError struct {
	FormValidationError
}

func (e *IncorrectCaptchaError) Unwrap() error {
	return &e.FormValidationError
}

type EmailAlreadyExistsError struct {
	FormValidationError
}

func (e *EmailAlreadyExistsError) Unwrap() error {
	return &e.FormValidationError
}

// SchemaError is a local validation failure, nothing was sent.
type SchemaError struct {
	FormValidationError
	// Suggestions maps an offending key or value to the closest valid one.
	Suggestions map[string]string
	cause       error
}

func (e *SchemaError) Error() string {
	msg := e.FormValidationError.Error()
	if len(e.Suggestions) == 0 {
		return msg
	}
	keys := make([]string, 0, len(e.Suggestions))
	for k := range e.Suggestions {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	hints := make([]string, len(keys))
	for i, k := range keys {
		hints[i] = fmt.Sprintf("%q -> %q", k, e.Suggestions[k])
	}
	return fmt.Sprintf("%s (did you mean: %s)", msg, strings.Join(hints, ", "))
}

func (e *SchemaError) Unwrap() []error {
	return []error{&e.FormValidationError, e.cause}
}

const (
	incorrectCodeText = "incorrect code"
	emailText         = "email"
	alreadyExistsText = "already exists"
)

// rejection maps the portal's validation messages to an error.
func rejection(messages []string) error {
	base := FormValidationError{Messages: messages}
	if len(messages) == 0 {
		base.Message = "unknown reason"
		return &base
	}
	for _, m := range messages {
		lower := strings.ToLower(m)
		if strings.Contains(lower, emailText) && strings.Contains(lower, alreadyExistsText) {
			base.Message = m
			return &EmailAlreadyExistsError{FormValidationError: base}
		}
	}
	for _, m := range messages {
		if strings.Contains(strings.ToLower(m), incorrectCodeText) {
			base.Message = m
			return &IncorrectCaptchaError{FormValidationError: base}
		}
	}
	base.Message = strings.Join(messages, "; ")
	return &base
}

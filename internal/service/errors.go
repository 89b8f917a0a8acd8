package service

import (
	"errors"
	"fmt"

	"task-audit/internal/model"
)

var (
	// ErrInvalidTransition covers both a wrong source status and an actor
	// lacking the role or relationship an operation requires.
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrNoAuditorAvailable   = errors.New("no auditor available")

	ErrTaskNotFound       = errors.New("task not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicateUser      = errors.New("username or email already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserInactive       = errors.New("account is deactivated")
)

// TransitionError explains why a workflow operation was rejected.
type TransitionError struct {
	Op     model.Action
	From   model.TaskStatus
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s task in status %s: %s", e.Op, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// FieldError names a required input that was left empty.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *FieldError) Unwrap() error {
	return ErrMissingRequiredField
}

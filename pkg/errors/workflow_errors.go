package custom_error

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports malformed or missing input, keyed by field name.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func NewFieldError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

// StateGuardError is returned when an aggregate is not in a state that
// allows the requested transition. Nothing is mutated.
type StateGuardError struct {
	Entity     string   `json:"entity"`
	ID         int      `json:"id"`
	Transition string   `json:"transition"`
	Current    string   `json:"current"`
	Required   []string `json:"required"`
}

func (e *StateGuardError) Error() string {
	return fmt.Sprintf(
		"%s %d is not in expected state for %s: current %q, required one of [%s]",
		e.Entity, e.ID, e.Transition, e.Current, strings.Join(e.Required, ", "),
	)
}

// BusinessRuleError names the rule that rejected the operation.
type BusinessRuleError struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func NewBusinessRuleError(rule, format string, args ...interface{}) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

// ReferentialBlockError lists the dependent record types that prevent the operation.
type ReferentialBlockError struct {
	Entity   string   `json:"entity"`
	ID       int      `json:"id"`
	Blocking []string `json:"blocking"`
}

func (e *ReferentialBlockError) Error() string {
	return fmt.Sprintf("%s %d is referenced by open records: %s", e.Entity, e.ID, strings.Join(e.Blocking, ", "))
}

type ForbiddenError struct {
	Message string `json:"message"`
}

func NewForbiddenError(format string, args ...interface{}) *ForbiddenError {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

type NotFoundError struct {
	Entity string `json:"entity"`
	ID     int    `json:"id"`
}

func NewNotFoundError(entity string, id int) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// PersistenceError hides the storage cause from callers. The cause is kept
// for logging through Unwrap.
type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("unable to %s, please try again later", e.Op)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

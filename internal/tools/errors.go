package tools

import (
	"errors"
	"fmt"
)

// ErrToolNotFound is matched by every NotFoundError.
var ErrToolNotFound = errors.New("unknown tool")

// NotFoundError reports a lookup of an unregistered tool name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrToolNotFound
}

// DuplicateNameError reports a second registration under the same name.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("tool %s already exists", e.Name)
}

// MissingArgumentError reports an absent required parameter.
type MissingArgumentError struct {
	Param string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("missing required parameter: %s", e.Param)
}

// TypeMismatchError reports a value that cannot be coerced to the declared type.
type TypeMismatchError struct {
	Param    string
	Expected ParamType
	Value    any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("invalid value for parameter %s: expected %s, got %T", e.Param, e.Expected, e.Value)
}

package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"
)

// Classed lets an error choose its own metric class.
type Classed interface {
	ErrorClass() string
}

// Classify returns a normalized error class for tagging metrics and logs.
// Context cancellation and errors implementing Classed anywhere in the chain
// win; otherwise the innermost concrete type name is used in snake case.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}

	var classed Classed
	if goerrors.As(err, &classed) {
		if class := classed.ErrorClass(); class != "" {
			return class
		}
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}

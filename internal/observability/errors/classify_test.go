package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type upstreamErr struct{ code int }

func (e *upstreamErr) Error() string      { return fmt.Sprintf("upstream %d", e.code) }
func (e *upstreamErr) ErrorClass() string { return fmt.Sprintf("upstream_%dxx", e.code/100) }

type plainErr struct{}

func (plainErr) Error() string { return "plain" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"classed", fmt.Errorf("page: %w", &upstreamErr{code: 503}), "upstream_5xx"},
		{"innermost type", fmt.Errorf("wrap: %w", plainErr{}), "errors_plainerr"},
		{"errors.New", goerrors.New("boom"), "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

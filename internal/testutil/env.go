// Package testutil provisions Postgres and Redis for integration tests.
//
// Both backends are located through environment variables and, when
// TEST_CONTAINERS is truthy, started on demand with testcontainers.
// Tests skip when a backend is unreachable unless TEST_REQUIRE_INFRA
// (or the backend-specific TEST_REQUIRE_DB / TEST_REQUIRE_REDIS) is set.
package testutil

import (
	"os"
	"strings"
	"time"
)

// TestingTB is the subset of testing.TB the helpers need.
type TestingTB interface {
	Helper()
	Cleanup(func())
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func useContainers() bool { return envBool("TEST_CONTAINERS") }

// unavailable fails or skips depending on whether the backend is mandatory.
func unavailable(t TestingTB, required bool, what string, err error) {
	t.Helper()
	if required || envBool("TEST_REQUIRE_INFRA") {
		t.Fatalf("%s not available: %v", what, err)
	}
	t.Skipf("%s not available: %v", what, err)
}

// TestTime is the fixed clock reading used by repository tests.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// RunConcurrent runs fns at once and returns their errors in argument order.
func RunConcurrent(fns ...func() error) []error {
	errs := make([]error, len(fns))
	start := make(chan struct{})
	done := make(chan struct{}, len(fns))
	for i, fn := range fns {
		go func() {
			defer func() { done <- struct{}{} }()
			<-start
			errs[i] = fn()
		}()
	}
	close(start)
	for range fns {
		<-done
	}
	return errs
}

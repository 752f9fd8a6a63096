package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()

	ctx2, cancel := WithTimeout(ctx, 0)
	defer cancel()
	deadline, ok := ctx2.Deadline()
	assert.True(t, ok)
	assert.True(t, deadline.After(time.Now().Add(DefaultTimeout-time.Minute)))

	ctx3, cancel2 := WithTimeout(ctx, 5*time.Second)
	defer cancel2()
	deadline2, ok := ctx3.Deadline()
	assert.True(t, ok)
	assert.True(t, deadline2.Before(time.Now().Add(10*time.Second)))
}

func TestParseTimeout(t *testing.T) {
	d, err := ParseTimeout("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, d)

	d, err = ParseTimeout("45m")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, d)

	_, err = ParseTimeout("soon")
	assert.Error(t, err)
	_, err = ParseTimeout("-1s")
	assert.Error(t, err)
}

func fastRetry() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastRetry(), func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("throttled")
		}
		return nil
	}, func(err error) bool {
		return true
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_NonRetryable(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastRetry(), func() error {
		attempts++
		return fmt.Errorf("AccessDenied")
	}, IsTransientError)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastRetry(), func() error {
		attempts++
		return fmt.Errorf("rate exceeded")
	}, IsTransientError)

	assert.ErrorContains(t, err, "max retries (3) exceeded")
	assert.Equal(t, 4, attempts)
}

func TestRetryWithBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryWithBackoff(ctx, &RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Second}, func() error {
		return fmt.Errorf("throttled")
	}, IsTransientError)
	assert.ErrorIs(t, err, context.Canceled)
}

type statusError struct{ code int }

func (e *statusError) Error() string       { return fmt.Sprintf("http %d", e.code) }
func (e *statusError) HTTPStatusCode() int { return e.code }

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"throttling code", &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}, true},
		{"wrapped slowdown", fmt.Errorf("put object: %w", &smithy.GenericAPIError{Code: "SlowDown"}), true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}, false},
		{"iam propagation", errors.New("InvalidParameterValueException: The role defined for the function cannot be assumed by Lambda."), true},
		{"server error status", &statusError{code: 503}, true},
		{"client error status", &statusError{code: 404}, false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"context cancelled", fmt.Errorf("op: %w", context.Canceled), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransientError(tt.err))
		})
	}
}

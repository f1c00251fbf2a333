package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsUnavailableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "not ready", err: ErrNotReady, want: true},
		{name: "wrapped not ready", err: fmt.Errorf("embed query: %w", ErrNotReady), want: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "http 500", err: &openAIHTTPError{StatusCode: 500, Body: "boom"}, want: true},
		{name: "http 503", err: &openAIHTTPError{StatusCode: 503, Body: "overloaded"}, want: true},
		{name: "http 429", err: &openAIHTTPError{StatusCode: 429, Body: "rate limited"}, want: true},
		{name: "http 408", err: &openAIHTTPError{StatusCode: 408, Body: "timeout"}, want: true},
		{name: "http 400", err: &openAIHTTPError{StatusCode: 400, Body: "bad request"}, want: false},
		{name: "http 401", err: &openAIHTTPError{StatusCode: 401, Body: "unauthorized"}, want: false},
		{name: "http 422", err: &openAIHTTPError{StatusCode: 422, Body: "unprocessable"}, want: false},
		{name: "wrapped http 400", err: fmt.Errorf("generate: %w", &openAIHTTPError{StatusCode: 400}), want: false},
		{name: "plain error", err: errors.New("something else"), want: false},
	}
	for _, tc := range cases {
		if got := IsUnavailable(tc.err); got != tc.want {
			t.Fatalf("%s: IsUnavailable=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsRetryableHTTP(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 599} {
		if !isRetryableHTTP(code) {
			t.Fatalf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if isRetryableHTTP(code) {
			t.Fatalf("status %d should not be retryable", code)
		}
	}
}

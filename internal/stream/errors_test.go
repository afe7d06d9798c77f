package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nested error object",
			err:  errors.New(`API Error: {"error":{"message":"model not found","type":"invalid_request_error"}}`),
			want: "model not found",
		},
		{
			name: "flat error string",
			err:  errors.New(`{"error":"rate limit exceeded"}`),
			want: "rate limit exceeded",
		},
		{
			name: "bare message field",
			err:  errors.New(`{"message":"context length exceeded"}`),
			want: "context length exceeded",
		},
		{
			name: "nested shape wins over flat",
			err:  errors.New(`{"error":{"message":"from nested"},"message":"from bare"}`),
			want: "from nested",
		},
		{
			name: "plain text first line",
			err:  errors.New("connection refused\nextra detail"),
			want: "connection refused",
		},
		{
			name: "skips API Error prefix line",
			err:  errors.New("API Error: something\nthe real reason"),
			want: "the real reason",
		},
		{
			name: "skips HTTP status line",
			err:  errors.New("HTTP 500 Internal Server Error\nupstream timed out"),
			want: "upstream timed out",
		},
		{
			name: "malformed JSON falls back to text",
			err:  errors.New(`{"error": oops`),
			want: `{"error": oops`,
		},
		{
			name: "nothing meaningful",
			err:  errors.New("API Error: \nHTTP 502 "),
			want: genericErrorMessage,
		},
		{
			name: "nil error",
			err:  nil,
			want: genericErrorMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

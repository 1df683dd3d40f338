package errors

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodes(t *testing.T) {
	codes := []string{
		ErrConfig,
		ErrResolver,
		ErrTracker,
		ErrControl,
		ErrLog,
	}

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.NotEmpty(t, code, "error code should not be empty")
		assert.False(t, seen[code], "error code %q should be unique", code)
		seen[code] = true
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		message    string
		suggestion string
	}{
		{
			name:       "config error",
			code:       ErrConfig,
			message:    "Invalid configuration in nyx.yaml",
			suggestion: "Check your configuration file syntax",
		},
		{
			name:       "resolver error",
			code:       ErrResolver,
			message:    "netstat is not installed",
			suggestion: "Install net-tools or pin a different resolver",
		},
		{
			name:       "control error",
			code:       ErrControl,
			message:    "Unable to find a tor process",
			suggestion: "Pass --pid explicitly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, tt.suggestion)

			require.NotNil(t, err)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.message, err.Message)
			assert.Equal(t, tt.suggestion, err.Suggestion)
			assert.Nil(t, err.Cause)
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name          string
		err           *Error
		expectedParts []string
		notExpected   []string
	}{
		{
			name:          "basic error formatting",
			err:           New(ErrConfig, "Invalid configuration", "Check nyx.yaml syntax"),
			expectedParts: []string{"✗", "Invalid configuration", "Check nyx.yaml syntax"},
		},
		{
			name:          "error without suggestion",
			err:           New(ErrTracker, "Tracker halted", ""),
			expectedParts: []string{"Tracker halted"},
			notExpected:   []string{"\n\n  \n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := tt.err.Error()

			for _, part := range tt.expectedParts {
				assert.Contains(t, output, part)
			}
			for _, part := range tt.notExpected {
				assert.NotContains(t, output, part)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("exit status 1")
	wrapped := Wrap(cause, "lsof failed")

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrResolver, wrapped.Code, "Wrap should default to ErrResolver code")
	assert.Equal(t, "lsof failed", wrapped.Message)
	assert.Equal(t, cause, wrapped.Cause)
}

func TestWrapWithCode(t *testing.T) {
	cause := errors.New("file not found")
	wrapped := WrapWithCode(cause, ErrConfig, "Failed to load config", "Run 'nyx config init'")

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrConfig, wrapped.Code)
	assert.Equal(t, "Run 'nyx config init'", wrapped.Suggestion)
	assert.Contains(t, wrapped.Error(), "file not found")
}

func TestErrorsIsAndAs(t *testing.T) {
	cause := errors.New("specific error")
	wrapped := WrapWithCode(cause, ErrLog, "Log error", "")

	assert.True(t, errors.Is(wrapped, cause))

	var nyxErr *Error
	require.True(t, errors.As(wrapped, &nyxErr))
	assert.Equal(t, ErrLog, nyxErr.Code)
}

func TestIsCode(t *testing.T) {
	err := New(ErrConfig, "Config error", "")

	assert.True(t, IsCode(err, ErrConfig))
	assert.False(t, IsCode(err, ErrResolver))
	assert.False(t, IsCode(errors.New("standard error"), ErrConfig))
	assert.False(t, IsCode(nil, ErrConfig))
}

func TestErrorMessageStructure(t *testing.T) {
	err := WrapWithCode(
		errors.New("permission denied"),
		ErrResolver,
		"Unable to read /proc/net/tcp",
		"Run nyx as the same user as tor",
	)

	lines := strings.Split(err.Error(), "\n")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[0]), "✗"))
	assert.Contains(t, lines[0], "Unable to read /proc/net/tcp")
}

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flushsafety/internal/harness"
	"github.com/roach88/flushsafety/internal/journal"
)

func sampleResult() *harness.Result {
	return &harness.Result{
		RunID:        "run-1",
		StorageDir:   "storage",
		Verification: &harness.Verification{Gap: 12},
		Stats:        harness.RunStats{Iterations: 40, FlushPairs: 3, LastFlushedIndex: 35},
		Outcome:      journal.OutcomeCompleted,
	}
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(sampleResult())
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   harness.Result `json:"data"`
	}
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.Data.RunID)
	assert.Equal(t, 35, resp.Data.Stats.LastFlushedIndex)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(CodeInvariantViolated, "invariant violated at index 3", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E001", resp.Error.Code)
	assert.Equal(t, "invariant violated at index 3", resp.Error.Message)
	assert.Nil(t, resp.Error.Details)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(CodeStoreError, "flush primary: closed", sampleResult())
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success(sampleResult())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "verification:  passed, gap at 12")
	assert.Contains(t, buf.String(), "flush pairs:   3 (last flushed index 35)")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error(CodeInvariantViolated, "invariant violated at index 3", sampleResult())
	require.NoError(t, err)
	assert.Equal(t, "Error [E001]: invariant violated at index 3\n", buf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error(CodeInvariantViolated, "invariant violated at index 3", sampleResult())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "Details:")
	assert.Contains(t, buf.String(), "outcome:       completed")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("seed %d", 42)

			assert.Empty(t, out.String(), "diagnostics never go to the JSON stream")
			if tt.wantLog {
				assert.Equal(t, "seed 42\n", errOut.String())
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestExitError(t *testing.T) {
	base := errors.New("disk full")

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"plain", NewExitError(ExitCommandError, "invalid format"), ExitCommandError, "invalid format"},
		{"wrapped", WrapExitError(ExitCommandError, "failed to open store", base), ExitCommandError, "failed to open store: disk full"},
		{"killed", NewExitError(137, "terminated"), 137, "terminated"},
		{"nested", fmt.Errorf("outer: %w", NewExitError(ExitFailure, "violated")), ExitFailure, "outer: violated"},
		{"not an exit error", base, ExitFailure, "disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, GetExitCode(tt.err))
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	err := WrapExitError(ExitFailure, "invariant violated", &harness.InvariantViolationError{Index: 2, Key: "test_key-2"})
	assert.ErrorIs(t, err, harness.ErrInvariantViolated)
}

package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statehub/internal/compiler"
)

func TestValidateCommand_ValidSpecs(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"shop.cue": shopCUE})

	out := mustExecute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)

	assert.Contains(t, out, "✓ All specs valid (1 store(s))")
}

func TestValidateCommand_ReservedStoreName(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"wf.cue": `package specs

store: workflow: slices: processes: kind: "LIST"
`})

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrReservedStoreName)
}

func TestValidateCommand_CompileErrorsAreReported(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"bad.cue": `package specs

store: shop: slices: things: kind: "SET"
store: audit: slices: entries: kind: "COUNTER"
`})

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), dir)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	assert.Equal(t, ErrCodeCompile, resp.Data.Errors[0].Code)
	assert.Equal(t, "load", resp.Data.Errors[0].Field)
}

func TestValidateCommand_DirectoryNotFound(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "/nonexistent/specs")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]: specs directory not found")
}

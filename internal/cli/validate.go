package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/statehub/internal/compiler"
	"github.com/roach88/statehub/internal/demo"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Stores int                        `json:"stores"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate CUE store definitions",
		Long: `Compile the CUE store definitions in a directory and check them against
the schema rules: names, slice kinds, display formats, id starts and hash
seeds. The workflow store name is reserved.

Exit codes:
  0 - All definitions valid
  1 - Schema validation failed
  2 - Command error (directory not found, CUE does not build, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		code, message := parseLoadError(err)
		validationErrors = append(validationErrors, compiler.ValidationError{
			Field:   "load",
			Message: message,
			Code:    code,
		})
	}
	for _, def := range loadResult.Stores {
		formatter.VerboseLog("Validating store: %s", def.Name)
	}
	validationErrors = append(validationErrors, compiler.Validate(loadResult.Stores, demo.StoreWorkflow)...)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}
	return outputValidateSuccess(formatter, len(loadResult.Stores))
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, stores int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Stores: stores})
	}

	fmt.Fprintf(formatter.Writer, "✓ All specs valid (%d store(s))\n", stores)
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/statehub/internal/state"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled store definitions.
type CompilationResult struct {
	Stores []state.Definition `json:"stores"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile CUE store definitions to JSON",
		Long: `Compile the CUE store definitions in a directory to JSON.

Every entry under the top-level "store" field becomes one definition with
its slices in declaration order. All compile errors are reported, not just
the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)
	for _, def := range loadResult.Stores {
		formatter.VerboseLog("Compiled store: %s", def.Name)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{Stores: loadResult.Stores}
	if opts.Output != "" {
		if err := writeDefinitionsToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d store(s)\n\n", len(result.Stores))
	fmt.Fprintln(formatter.Writer, "Stores:")
	for _, def := range result.Stores {
		parts := make([]string, len(def.Slices))
		for i, sd := range def.Slices {
			parts[i] = fmt.Sprintf("%s %s", sd.Name, sd.Kind)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", def.Name, strings.Join(parts, ", "))
	}
	fmt.Fprintln(formatter.Writer)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote definitions to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseLoadError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		code, message := parseLoadError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseLoadError extracts error code and message from an error.
func parseLoadError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeDefinitionsToFile writes the compiled definitions as indented JSON.
func writeDefinitionsToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling definitions: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

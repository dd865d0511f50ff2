package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/statehub/internal/compiler"
	"github.com/roach88/statehub/internal/demo"
	"github.com/roach88/statehub/internal/state"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the store definitions loaded from a directory.
type LoadResult struct {
	Stores    []state.Definition
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSpecs loads the CUE package in dir and compiles every entry under
// its top-level "store" field.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadSpecs(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	if loadErr := checkSpecsDir(dir); loadErr != nil {
		return nil, []error{loadErr}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	storesVal := value.LookupPath(cue.ParsePath("store"))
	if storesVal.Exists() {
		iter, iterErr := storesVal.Fields()
		if iterErr != nil {
			return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating stores: %v", iterErr)}}
		}
		for iter.Next() {
			def, compileErr := compiler.CompileStore(iter.Value())
			if compileErr != nil {
				errs = append(errs, convertCompileError(compileErr, "store."+iter.Label()))
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			result.Stores = append(result.Stores, def)
		}
	}

	if len(result.Stores) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoStores, Message: "no stores found in specs"})
	}
	return result, errs
}

// checkSpecsDir reports a missing or non-directory specs path.
func checkSpecsDir(dir string) *LoadError {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}
	case err != nil:
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}
	case !info.IsDir():
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}
	return nil
}

// LoadDefinitions reads store definitions from path: either a directory of
// CUE files or a JSON artifact written by "statehub compile -o". Artifacts
// are validated again since they may have been edited by hand.
func LoadDefinitions(path string) ([]state.Definition, error) {
	if filepath.Ext(path) != ".json" {
		loaded, errs := LoadSpecs(path, LoadModeFailFast)
		if len(errs) > 0 {
			return nil, errs[0]
		}
		return loaded.Stores, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading definitions: %v", err)}
	}
	var artifact CompilationResult
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, &LoadError{Code: ErrCodeBadArtifact, Message: fmt.Sprintf("%s: %v", path, err)}
	}
	if len(artifact.Stores) == 0 {
		return nil, &LoadError{Code: ErrCodeNoStores, Message: fmt.Sprintf("%s: no stores", path)}
	}
	if verrs := compiler.Validate(artifact.Stores, demo.StoreWorkflow); len(verrs) > 0 {
		return nil, &LoadError{Code: verrs[0].Code, Message: fmt.Sprintf("%s: %s: %s", path, verrs[0].Field, verrs[0].Message)}
	}
	return artifact.Stores, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeCompile,
			Message: fmt.Sprintf("%s: %s: %s", context, compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants, shared by every CLI command.
// Schema validation codes (E1xx) come from the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeCompile     = "E008" // Store definition does not compile
	ErrCodeNoStores    = "E009" // No store entries in specs
	ErrCodeBadArtifact = "E010" // Compiled definitions file is not valid JSON

	ErrCodeUnknownStore = "E023" // Store name not in the system
	ErrCodeDispatch     = "E025" // Dispatch did not reach the log
	ErrCodeNotFoundID   = "E026" // No record with that id
	ErrCodeDiverged     = "E027" // Replay paths disagree
	ErrCodeTestFailed   = "E028" // One or more scenarios failed
)

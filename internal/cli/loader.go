package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/upbb/internal/compiler"
	"github.com/roach88/upbb/internal/ir"
)

// LoadMode controls how errors are handled during problem loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the problems loaded from a file or directory.
type LoadResult struct {
	Problems  []ir.Problem
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during problem loading.
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

// LoadProblems loads and compiles the problem definitions at path.
//
// path is either a single .cue file or a directory holding one CUE
// package. If mode is LoadModeFailFast, returns on the first error; if
// LoadModeCollectAll, every quantity and propagation is compiled and all
// errors are returned.
func LoadProblems(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("problem path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing problem path: %v", err)}}
	}

	var value cue.Value
	fileCount := 1
	if info.IsDir() {
		value, fileCount, err = loadDir(path)
	} else {
		value, err = loadFile(path)
	}
	if err != nil {
		return nil, []error{err}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: fileCount,
	}

	if mode == LoadModeFailFast {
		problems, err := compiler.CompileProblems(value)
		if err != nil {
			return result, []error{convertCompileError(err, "problem")}
		}
		result.Problems = problems
		return result, nil
	}

	problems, errs := compileAll(value)
	result.Problems = problems
	return result, errs
}

func loadDir(dir string) (cue.Value, int, error) {
	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return value, len(cueFiles), nil
}

func loadFile(path string) (cue.Value, error) {
	if filepath.Ext(path) != ".cue" {
		return cue.Value{}, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a CUE file: %s", path)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	value := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return cue.Value{}, convertCompileError(err, "cue")
	}
	return value, nil
}

// compileAll compiles every declaration independently so one bad
// quantity or propagation does not hide errors in the others.
func compileAll(value cue.Value) ([]ir.Problem, []error) {
	var errs []error

	var quantities []ir.Quantity
	if qVal := value.LookupPath(cue.ParsePath("quantity")); qVal.Exists() {
		iter, err := qVal.Fields()
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating quantities: %v", err)}}
		}
		for iter.Next() {
			q, err := compiler.CompileQuantity(iter.Label(), iter.Value())
			if err != nil {
				errs = append(errs, convertCompileError(err, "quantity."+iter.Label()))
				continue
			}
			quantities = append(quantities, q)
		}
	}

	var problems []ir.Problem
	if pVal := value.LookupPath(cue.ParsePath("propagation")); pVal.Exists() {
		iter, err := pVal.Fields()
		if err != nil {
			return nil, append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating propagations: %v", err)})
		}
		for iter.Next() {
			spec, err := compiler.CompilePropagation(iter.Value())
			if err != nil {
				errs = append(errs, convertCompileError(err, "propagation."+iter.Label()))
				continue
			}
			name := iter.Label()
			if spec.Output.Name == "" {
				spec.Output.Name = name
			}
			problems = append(problems, ir.Problem{
				Name:        name,
				Quantities:  quantities,
				Propagation: *spec,
			})
		}
	}

	if len(problems) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoProblems, Message: "no propagations found"})
	}
	return problems, errs
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
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeNoProblems  = "E008" // No propagation declared

	// Declaration errors
	ErrCodeInvalidBounds  = "E103" // Bounds missing, inverted or non-numeric
	ErrCodeInvalidEssence = "E104" // Unknown essence
	ErrCodeInvalidModel   = "E119" // Model missing or not a string
	ErrCodeInvalidVars    = "E110" // Vars missing or malformed
	ErrCodeInvalidSetting = "E123" // Malformed method, n, seed, workers or timeout
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "bounds", "value":
		return ErrCodeInvalidBounds
	case "essence":
		return ErrCodeInvalidEssence
	case "model":
		return ErrCodeInvalidModel
	case "vars":
		return ErrCodeInvalidVars
	case "method", "n", "seed", "workers", "timeout", "save_raw_data", "base_path":
		return ErrCodeInvalidSetting
	case "propagation":
		return ErrCodeNoProblems
	default:
		return ErrCodeGeneric
	}
}

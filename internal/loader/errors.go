package loader

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes shared by the loader and the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	// Declaration errors
	ErrCodeInvalidKind  = "E101" // kind is not model or block
	ErrCodeInvalidField = "E102" // field without type or label
	ErrCodeInvalidItem  = "E103" // definition rejected by schema validation
	ErrCodeInvalidType  = "E104" // unsupported value type (e.g., float)
	ErrCodeInvalidRef   = "E105" // malformed reference object

	// Dependency errors
	ErrCodeUnknownItem = "E201" // reference to an undeclared item
	ErrCodeCycle       = "E202" // static dependency cycle
)

// LoadError is a loading or declaration error, with its CUE position when
// known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func errorf(code string, pos token.Pos, format string, args ...any) *LoadError {
	return &LoadError{Code: code, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// fromCUE turns a CUE error into a LoadError positioned at its first error.
func fromCUE(code string, err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

package deploy

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/roach88/dbbm/internal/config"
	"github.com/roach88/dbbm/internal/plan"
	"github.com/roach88/dbbm/internal/resume"
	"github.com/roach88/dbbm/internal/sqlrunner"
	"github.com/roach88/dbbm/internal/task"
)

// FailureCode categorizes deployment failures. Every code is recoverable
// at the driver level and surfaces as a non-zero exit.
type FailureCode string

const (
	CodeNoProject         FailureCode = "NO_PROJECT"
	CodeConfigParse       FailureCode = "CONFIG_PARSE"
	CodeNoBaseline        FailureCode = "NO_BASELINE"
	CodeUnknownRelease    FailureCode = "UNKNOWN_RELEASE"
	CodeUnknownFeature    FailureCode = "UNKNOWN_FEATURE"
	CodeUnknownTask       FailureCode = "UNKNOWN_TASK"
	CodeResumeMissing     FailureCode = "RESUME_MISSING"
	CodeResumeInvalid     FailureCode = "RESUME_INVALID"
	CodeUnmetRequirements FailureCode = "UNMET_REQUIREMENTS"
	CodeSQLFailure        FailureCode = "SQL_FAILURE"
	CodeIOFailure         FailureCode = "IO_FAILURE"
)

// SoftFailure is the error the driver reports: a code, a message, and
// the wrapped cause. The driver wraps any deeper failure once more as
// "Blocking error detected" before returning it to the CLI.
type SoftFailure struct {
	Code    FailureCode
	Message string
	Err     error
}

func (e *SoftFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SoftFailure) Unwrap() error { return e.Err }

// IsSoftFailure extracts a SoftFailure from an error chain.
func IsSoftFailure(err error) (*SoftFailure, bool) {
	var sf *SoftFailure
	ok := errors.As(err, &sf)
	return sf, ok
}

// classify maps a deeper error onto its failure code.
func classify(err error) *SoftFailure {
	if sf, ok := IsSoftFailure(err); ok {
		return sf
	}

	code := CodeIOFailure
	switch {
	case errors.Is(err, config.ErrNoProject):
		code = CodeNoProject
	case isAs[*config.ParseError](err):
		code = CodeConfigParse
	case isAs[*config.UnknownReleaseError](err):
		code = CodeUnknownRelease
	case isAs[*config.UnknownFeatureError](err):
		code = CodeUnknownFeature
	case isAs[*task.UnknownTaskError](err):
		code = CodeUnknownTask
	case isAs[*plan.NoBaselineError](err):
		code = CodeNoBaseline
	case errors.Is(err, resume.ErrMissing):
		code = CodeResumeMissing
	case isAs[*resume.InvalidError](err):
		code = CodeResumeInvalid
	case isAs[*sqlrunner.ScriptError](err):
		code = CodeSQLFailure
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		code = CodeIOFailure
	}
	return &SoftFailure{Code: code, Message: "deployment failed", Err: err}
}

func isAs[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

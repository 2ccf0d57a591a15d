package compute

import (
	"errors"
	"fmt"
)

// Code identifies a runtime failure. Values follow the OpenCL status codes so
// diagnostics read the same as on a real driver.
type Code int

const (
	CodeOutOfResources        Code = -5
	CodeBuildProgramFailure   Code = -11
	CodeExecutionFailure      Code = -14
	CodeInvalidValue          Code = -30
	CodeInvalidMemObject      Code = -38
	CodeInvalidKernelName     Code = -46
	CodeInvalidKernelArgs     Code = -52
	CodeInvalidWorkGroupSize  Code = -54
	CodeInvalidWorkItemSize   Code = -55
	CodeInvalidGlobalWorkSize Code = -63

	// CodeBarrierDivergence has no OpenCL equivalent; real devices hang or
	// corrupt results instead.
	CodeBarrierDivergence Code = -9001
)

func (c Code) String() string {
	switch c {
	case CodeOutOfResources:
		return "OUT_OF_RESOURCES"
	case CodeBuildProgramFailure:
		return "BUILD_PROGRAM_FAILURE"
	case CodeExecutionFailure:
		return "EXEC_STATUS_ERROR"
	case CodeInvalidValue:
		return "INVALID_VALUE"
	case CodeInvalidMemObject:
		return "INVALID_MEM_OBJECT"
	case CodeInvalidKernelName:
		return "INVALID_KERNEL_NAME"
	case CodeInvalidKernelArgs:
		return "INVALID_KERNEL_ARGS"
	case CodeInvalidWorkGroupSize:
		return "INVALID_WORK_GROUP_SIZE"
	case CodeInvalidWorkItemSize:
		return "INVALID_WORK_ITEM_SIZE"
	case CodeInvalidGlobalWorkSize:
		return "INVALID_GLOBAL_WORK_SIZE"
	case CodeBarrierDivergence:
		return "BARRIER_DIVERGENCE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(c))
	}
}

// Error is a runtime failure with the operation that raised it. Log carries the
// build log for BuildProgramFailure.
type Error struct {
	Code    Code
	Op      string
	Message string
	Log     string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s (%d %s)", e.Op, e.Message, int(e.Code), e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the category sentinels below.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidDispatchShape:
		return e.Code == CodeInvalidWorkGroupSize || e.Code == CodeInvalidWorkItemSize || e.Code == CodeInvalidGlobalWorkSize
	case ErrBuildFailure:
		return e.Code == CodeBuildProgramFailure || e.Code == CodeInvalidKernelName
	case ErrOutOfResources:
		return e.Code == CodeOutOfResources
	case ErrBarrierDivergence:
		return e.Code == CodeBarrierDivergence
	case ErrInvalidArgs:
		return e.Code == CodeInvalidKernelArgs || e.Code == CodeInvalidValue || e.Code == CodeInvalidMemObject
	case ErrExecution:
		return e.Code == CodeExecutionFailure
	}
	return false
}

var (
	ErrInvalidDispatchShape = errors.New("invalid dispatch shape")
	ErrBuildFailure         = errors.New("program build failure")
	ErrOutOfResources       = errors.New("out of resources")
	ErrBarrierDivergence    = errors.New("barrier divergence")
	ErrInvalidArgs          = errors.New("invalid arguments")
	ErrExecution            = errors.New("kernel execution failure")
)

func newError(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the status code from err, or 0 when err is not a runtime error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

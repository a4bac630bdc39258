package render

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"
)

// VulkanError is a failed vulkan.Result together with the frame that
// observed it.
type VulkanError struct {
	Result vulkan.Result
	Frame  string
}

func (e *VulkanError) Error() string {
	if e.Frame == "" {
		return fmt.Sprintf("vulkan error: %v (%d)", vulkan.Error(e.Result), e.Result)
	}
	return fmt.Sprintf("vulkan error: %v (%d) on %s", vulkan.Error(e.Result), e.Result, e.Frame)
}

func (e *VulkanError) Unwrap() error { return vulkan.Error(e.Result) }

// NewError returns nil for vulkan.Success and a *VulkanError otherwise.
func NewError(retVal vulkan.Result) error {
	if retVal == vulkan.Success {
		return nil
	}
	err := &VulkanError{Result: retVal}
	if pc, _, _, ok := runtime.Caller(1); ok {
		err.Frame = newStackFrame(pc).String()
	}
	return err
}

func IsError(retVal vulkan.Result) bool {
	return retVal != vulkan.Success
}

// resultUnknown mirrors VK_ERROR_UNKNOWN.
const resultUnknown vulkan.Result = -13

// ResultOf digs the vulkan.Result out of err, or returns
// VK_ERROR_UNKNOWN when err carries none.
func ResultOf(err error) vulkan.Result {
	if err == nil {
		return vulkan.Success
	}
	var ve *VulkanError
	if errors.As(err, &ve) {
		return ve.Result
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return resultUnknown
}

// OrPanic runs the finalizers and panics if err is not nil.
func OrPanic(err error, finalizers ...func()) {
	if err == nil {
		return
	}
	for _, fn := range finalizers {
		fn()
	}
	panic(err)
}

// CheckError recovers a panic into *err. Use it deferred.
func CheckError(err *error) {
	if v := recover(); v != nil {
		if e, ok := v.(error); ok {
			*err = errors.WithStack(e)
			return
		}
		*err = fmt.Errorf("%+v", v)
	}
}

type stackFrame struct {
	fn   string
	file string
	line int
}

func newStackFrame(pc uintptr) stackFrame {
	fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	fn := fr.Function
	if i := strings.LastIndexByte(fn, '/'); i >= 0 {
		fn = fn[i+1:]
	}
	file := fr.File
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return stackFrame{fn: fn, file: file, line: fr.Line}
}

func (f stackFrame) String() string {
	return fmt.Sprintf("%s (%s:%d)", f.fn, f.file, f.line)
}

// Kinds of failure surfaced by the engine. Match them with errors.Is.
var (
	// ErrPresentationSetup means a swap chain generation could not be
	// built: no usable surface format or present mode, or a device call
	// failed while creating chain-dependent objects.
	ErrPresentationSetup = errors.New("render: presentation setup failed")

	// ErrSynchronization means a fence or device-idle wait failed.
	ErrSynchronization = errors.New("render: synchronization failed")

	// ErrPresentation means acquire or present failed for a reason other
	// than a stale or suboptimal chain.
	ErrPresentation = errors.New("render: presentation failed")

	// ErrSubmission means the graphics queue rejected a submission.
	ErrSubmission = errors.New("render: queue submission failed")
)

// Error is a fatal engine failure. Kind is one of the Err* values above,
// Op names the failing operation and Code is the device diagnostic code.
type Error struct {
	Kind error
	Op   string
	Code vulkan.Result
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	b.WriteString(": ")
	b.WriteString(e.Op)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	} else if e.Code != vulkan.Success {
		fmt.Fprintf(&b, ": %v (%d)", vulkan.Error(e.Code), e.Code)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

func resultError(kind error, op string, code vulkan.Result) error {
	return &Error{Kind: kind, Op: op, Code: code}
}

func wrapError(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) && re.Kind == kind {
		return err
	}
	return &Error{Kind: kind, Op: op, Code: ResultOf(err), Err: err}
}

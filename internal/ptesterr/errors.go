// Package ptesterr provides the standardized error taxonomy used across the
// property test engine.
package ptesterr

import (
	"fmt"
	"runtime"
)

// Category classifies an engine error by severity, mirroring the taxonomy
// in spec §7: configuration errors are the least severe (no trials run),
// allocation failures release partial state, generator/property errors are
// fatal to the current trial or run.
type Category string

const (
	// CategoryConfig covers a missing alloc callback, an arity/function
	// mismatch, or conflicting shrink+autoshrink configuration. Returned
	// from the run entry point as ResultError with no trials executed.
	CategoryConfig Category = "CONFIG"

	// CategoryAllocation covers any memory acquisition failure. Returned
	// as ResultErrorMemory; partially allocated run state is released.
	CategoryAllocation Category = "ALLOCATION"

	// CategoryGenerator covers a generator returning its error code.
	// Fatal to the current trial; within shrinking, fatal to the run.
	CategoryGenerator Category = "GENERATOR"

	// CategoryHook covers a hook callback returning the error outcome.
	// Fatal; aborts the run immediately after cleanup.
	CategoryHook Category = "HOOK"

	// CategoryChild covers a forked trial child that crashed, could not
	// be spawned, or failed to terminate within its exit timeout.
	CategoryChild Category = "CHILD"
)

// Error is a standardized engine error: a category tag, a short code, a
// human-readable message, and the caller that raised it.
type Error struct {
	Category Category
	Code     string
	Message  string
	Context  map[string]any
	Caller   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// New creates a standardized error, recording the immediate caller.
func New(category Category, code, message string, context map[string]any) *Error {
	pc, _, _, ok := runtime.Caller(1)

	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// MissingAlloc reports a type_info record with no alloc callback.
func MissingAlloc(argIndex int) *Error {
	return New(CategoryConfig, "MISSING_ALLOC",
		fmt.Sprintf("argument %d has no alloc callback", argIndex),
		map[string]any{"arg_index": argIndex})
}

// ConflictingShrink reports a type_info record with both an explicit
// shrink function and autoshrink enabled.
func ConflictingShrink(argIndex int) *Error {
	return New(CategoryConfig, "CONFLICTING_SHRINK",
		fmt.Sprintf("argument %d configures both an explicit shrink function and autoshrink", argIndex),
		map[string]any{"arg_index": argIndex})
}

// ArityMismatch reports a property function whose arity does not match the
// number of supplied generators.
func ArityMismatch(want, got int) *Error {
	return New(CategoryConfig, "ARITY_MISMATCH",
		fmt.Sprintf("property expects %d argument(s), got %d generator(s)", want, got),
		map[string]any{"want": want, "got": got})
}

// AllocationFailure reports a memory acquisition failure during run setup
// or during generation.
func AllocationFailure(context string) *Error {
	return New(CategoryAllocation, "ALLOCATION_FAILURE",
		fmt.Sprintf("allocation failed: %s", context),
		map[string]any{"context": context})
}

// GeneratorFailed reports a generator returning its error outcome.
func GeneratorFailed(argIndex int, detail string) *Error {
	return New(CategoryGenerator, "GENERATOR_ERROR",
		fmt.Sprintf("generator for argument %d failed: %s", argIndex, detail),
		map[string]any{"arg_index": argIndex, "detail": detail})
}

// HookFailed reports a hook callback returning the error outcome.
func HookFailed(point string) *Error {
	return New(CategoryHook, "HOOK_ERROR",
		fmt.Sprintf("hook at %s returned error", point),
		map[string]any{"point": point})
}

// ChildCrashed reports a forked trial child that exited abnormally.
func ChildCrashed(reason string) *Error {
	return New(CategoryChild, "CHILD_CRASHED",
		fmt.Sprintf("trial child crashed: %s", reason),
		map[string]any{"reason": reason})
}

package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yaoapp/kun/log"
	lua "github.com/yuin/gopher-lua"
)

// ErrCorruptedTransaction the trans global does not hold a live transaction handle
var ErrCorruptedTransaction = errors.New("corrupted transaction")

func (kind Kind) String() string {
	switch kind {
	case KindSyntax:
		return "syntax"
	case KindMemory:
		return "memory"
	case KindRuntime:
		return "runtime"
	}
	return "panicked"
}

func (stage Stage) String() string {
	switch stage {
	case StageLoad:
		return "load"
	case StageCall:
		return "call"
	case StageResult:
		return "result"
	}
	return "commit"
}

func (err *ArgumentError) Error() string {
	return fmt.Sprintf("bad argument #%d (%s)", err.Position, err.Message)
}

// Error only syntax and runtime errors carry the diagnostic message
func (err *ScriptError) Error() string {
	switch err.Kind {
	case KindSyntax:
		return fmt.Sprintf("syntax error: %s", err.Message)
	case KindMemory:
		return "out of memory"
	case KindRuntime:
		return fmt.Sprintf("runtime error: %s", err.Message)
	}
	return "script panicked"
}

// Unwrap the host failure, commit failure or context error behind the script error
func (err *ScriptError) Unwrap() error {
	return err.Cause
}

// IsKind check the kind of a script error
func IsKind(err error, kind Kind) bool {
	var scriptErr *ScriptError
	return errors.As(err, &scriptErr) && scriptErr.Kind == kind
}

func syntaxError(err error) *ScriptError {
	return &ScriptError{Kind: KindSyntax, Stage: StageLoad, Message: err.Error()}
}

func resultError(err error) *ScriptError {
	return &ScriptError{
		Kind:    KindRuntime,
		Stage:   StageResult,
		Message: fmt.Sprintf("could not convert the script result: %s", err.Error()),
		Cause:   err,
	}
}

func commitError(err error) *ScriptError {
	return &ScriptError{
		Kind:    KindRuntime,
		Stage:   StageCommit,
		Message: fmt.Sprintf("could not commit script transaction: %s", err.Error()),
		Cause:   err,
	}
}

func timeoutError(ctx context.Context) *ScriptError {
	cause := ctx.Err()
	if cause == nil {
		cause = context.DeadlineExceeded
	}
	return &ScriptError{
		Kind:    KindRuntime,
		Stage:   StageCall,
		Message: fmt.Sprintf("script execution interrupted: %s", cause.Error()),
		Cause:   cause,
	}
}

// callError classify a failed invocation against the errors the session saw raised
func callError(ctx context.Context, err error, sess *session) *ScriptError {
	if ctx.Err() != nil {
		return timeoutError(ctx)
	}

	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		log.Error("[script] unexpected call error: %s", err.Error())
		return &ScriptError{Kind: KindPanicked, Stage: StageCall, Message: err.Error(), Cause: err}
	}

	message := ""
	if apiErr.Object != nil {
		message = apiErr.Object.String()
	}

	if overflowed(message, sess) {
		return &ScriptError{Kind: KindMemory, Stage: StageCall, Message: message}
	}

	switch apiErr.Type {
	case lua.ApiErrorRun:
		scriptErr := &ScriptError{Kind: KindRuntime, Stage: StageCall, Message: message}
		if sess.failure != nil && sess.raised != "" && strings.Contains(message, sess.raised) {
			scriptErr.Cause = sess.failure
		}
		return scriptErr

	case lua.ApiErrorSyntax:
		return &ScriptError{Kind: KindSyntax, Stage: StageCall, Message: message}
	}

	log.Error("[script] %s", apiErr.Error())
	return &ScriptError{Kind: KindPanicked, Stage: StageCall, Message: message, Cause: apiErr}
}

// registryOverflow the message the interpreter raises when the registry can not grow
const registryOverflow = "registry overflow"

// overflowed the interpreter raised the registry overflow, not the script or a host function
func overflowed(message string, sess *session) bool {
	if message != registryOverflow && !strings.HasSuffix(message, ": "+registryOverflow) {
		return false
	}
	if sess.thrown != "" && strings.HasSuffix(message, sess.thrown) {
		return false
	}
	if sess.raised != "" && strings.HasSuffix(message, sess.raised) {
		return false
	}
	return true
}

// trackErrors replace error and assert by versions recording the raised message,
// the raise level is the same as the base library's.
func (s *session) trackErrors() {
	if _, ok := s.L.GetGlobal("error").(*lua.LFunction); ok {
		s.L.SetGlobal("error", s.L.NewFunction(func(L *lua.LState) int {
			obj := L.CheckAny(1)
			level := L.OptInt(2, 1)
			if obj.Type() == lua.LTString || obj.Type() == lua.LTNumber {
				s.thrown = obj.String()
			}
			L.Error(obj, level)
			return 0
		}))
	}

	if _, ok := s.L.GetGlobal("assert").(*lua.LFunction); ok {
		s.L.SetGlobal("assert", s.L.NewFunction(func(L *lua.LState) int {
			if !L.ToBool(1) {
				message := L.OptString(2, "assertion failed!")
				s.thrown = message
				L.RaiseError("%s", message)
				return 0
			}
			return L.GetTop()
		}))
	}
}

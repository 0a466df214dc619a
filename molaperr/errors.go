// Package molaperr defines the error taxonomy shared by every olap
// component and the wire error code each maps to (spec §6/§7).
package molaperr

import (
	"errors"
	"fmt"
)

// Code identifies an error for the wire format
// "<errorCode>;<description>;<message>".
type Code int

const (
	CodeInternal Code = 1 + iota
	CodeInvalidSession
	CodeNotAuthorized
	CodeDatabaseNotFound
	CodeDatabaseNameInUse
	CodeDatabaseUndeletable
	CodeDatabaseUnrenamable
	CodeDatabaseNotLoaded
	CodeDatabaseUnsaved
	CodeDimensionNotFound
	CodeDimensionNameInUse
	CodeDimensionUndeletable
	CodeDimensionUnrenamable
	CodeCubeNotFound
	CodeCubeNameInUse
	CodeCubeUndeletable
	CodeElementNotFound
	CodeElementNameInUse
	CodeElementUndeletable
	CodeRuleNotFound
	CodeInvalidCoordinates
	CodeInvalidSplashMode
	CodeInvalidPathType
	CodeParameterMissing
	CodeWithinEvent
	CodeNotWithinEvent
	CodeServerTokenOutdated
	CodeDatabaseTokenOutdated
	CodeDimensionTokenOutdated
	CodeCubeTokenOutdated
	CodeClientCacheTokenOutdated
	CodeLockedArea
	CodeCorruptFile
	CodeRenameFailed
	CodeWorkerMessage
)

// Error is a typed, wire-describable failure.
type Error struct {
	Code        Code
	Description string
	Message     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Description, e.Message)
}

// New builds an *Error for the given code with a formatted message.
func New(code Code, description, format string, args ...interface{}) *Error {
	return &Error{Code: code, Description: description, Message: fmt.Sprintf(format, args...)}
}

// Wire renders the §6 error line: "<errorCode>;<description>;<message>\n".
func (e *Error) Wire() string {
	return fmt.Sprintf("%d;%s;%s\n", e.Code, escape(e.Description), escape(e.Message))
}

func escape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ';', '\n', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// Sentinel errors for conditions that never carry a wire code of their
// own and are instead checked with errors.Is by callers that already
// know the context (e.g. journal replay of an already-applied op).
var (
	ErrAlreadyApplied = errors.New("operation already reflected in state")
	ErrCycle          = errors.New("edit would create a cycle")
	ErrEvaluationCycle = errors.New("rule evaluation re-entered its own coordinate")
)

func InvalidSession(sid string) *Error {
	return New(CodeInvalidSession, "InvalidSession", "session %q is unknown or expired", sid)
}

func NotAuthorized(action string) *Error {
	return New(CodeNotAuthorized, "NotAuthorized", "%s is not permitted", action)
}

func NotFound(kind, name string) *Error {
	var code Code
	switch kind {
	case "database":
		code = CodeDatabaseNotFound
	case "dimension":
		code = CodeDimensionNotFound
	case "cube":
		code = CodeCubeNotFound
	case "element":
		code = CodeElementNotFound
	case "rule":
		code = CodeRuleNotFound
	default:
		code = CodeInternal
	}
	return New(code, kind+"NotFound", "%s %q not found", kind, name)
}

func NameInUse(kind, name string) *Error {
	var code Code
	switch kind {
	case "database":
		code = CodeDatabaseNameInUse
	case "dimension":
		code = CodeDimensionNameInUse
	case "cube":
		code = CodeCubeNameInUse
	case "element":
		code = CodeElementNameInUse
	default:
		code = CodeInternal
	}
	return New(code, kind+"NameInUse", "name %q already in use", name)
}

func Undeletable(kind, name string) *Error {
	var code Code
	switch kind {
	case "database":
		code = CodeDatabaseUndeletable
	case "dimension":
		code = CodeDimensionUndeletable
	case "cube":
		code = CodeCubeUndeletable
	case "element":
		code = CodeElementUndeletable
	default:
		code = CodeInternal
	}
	return New(code, kind+"Undeletable", "%s %q cannot be deleted", kind, name)
}

func Unrenamable(kind, name string) *Error {
	var code Code
	switch kind {
	case "database":
		code = CodeDatabaseUnrenamable
	case "dimension":
		code = CodeDimensionUnrenamable
	default:
		code = CodeInternal
	}
	return New(code, kind+"Unrenamable", "%s %q cannot be renamed", kind, name)
}

func InvalidCoordinates(reason string) *Error {
	return New(CodeInvalidCoordinates, "InvalidCoordinates", "%s", reason)
}

func InvalidSplashMode(mode int) *Error {
	return New(CodeInvalidSplashMode, "InvalidSplashMode", "unknown splash mode %d", mode)
}

func InvalidPathType(want, got string) *Error {
	return New(CodeInvalidPathType, "InvalidPathType", "path is %s-typed, value is %s-typed", want, got)
}

func ParameterMissing(name string) *Error {
	return New(CodeParameterMissing, "ParameterMissing", "required parameter %q missing", name)
}

func WithinEvent() *Error {
	return New(CodeWithinEvent, "WithinEvent", "another session holds the server event lock")
}

func NotWithinEvent() *Error {
	return New(CodeNotWithinEvent, "NotWithinEvent", "no active event for this session")
}

func TokenOutdated(scope string) *Error {
	var code Code
	switch scope {
	case "server":
		code = CodeServerTokenOutdated
	case "database":
		code = CodeDatabaseTokenOutdated
	case "dimension":
		code = CodeDimensionTokenOutdated
	case "cube":
		code = CodeCubeTokenOutdated
	case "clientcache":
		code = CodeClientCacheTokenOutdated
	default:
		code = CodeInternal
	}
	return New(code, capitalize(scope)+"TokenOutdated", "%s token precondition failed", scope)
}

func LockedArea(cube string) *Error {
	return New(CodeLockedArea, "LockedArea", "area in cube %q is locked by another session", cube)
}

func CorruptFile(path string, cause error) *Error {
	return New(CodeCorruptFile, "CorruptFile", "%s: %v", path, cause)
}

func RenameFailed(reason string) *Error {
	return New(CodeRenameFailed, "RenameFailed", "%s", reason)
}

func WorkerMessage(text string) *Error {
	return New(CodeWorkerMessage, "WorkerMessage", "%s", text)
}

func Internal(format string, args ...interface{}) *Error {
	return New(CodeInternal, "Internal", format, args...)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

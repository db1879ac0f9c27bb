// Package errs defines the coded error type shared by every barnacle component.
//
// Each error carries a stable Code so callers and tests can branch on the
// failure without matching message text, and a Kind that groups codes into
// the validation / io / mount / unmount / concurrency families.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code is a stable identifier for a failure.
type Code string

const (
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeDuplicateName   Code = "DUPLICATE_NAME"
	CodeNotFound        Code = "NOT_FOUND"
	CodeBrokenChain     Code = "BROKEN_CHAIN"
	CodeModInUse        Code = "MOD_IN_USE"
	CodeArchive         Code = "ARCHIVE"
	CodePermission      Code = "PERMISSION"
	CodeFilesystem      Code = "FILESYSTEM"
	CodeStore           Code = "STORE"
	CodeDeployFailed    Code = "DEPLOY_FAILED"
	CodeUndeployFailed  Code = "UNDEPLOY_FAILED"
	CodeAlreadyDeployed Code = "ALREADY_DEPLOYED"
	CodeChainMutated    Code = "CHAIN_MUTATED"
	CodeGameDeployed    Code = "GAME_DEPLOYED"
)

// Kind groups codes into the families callers usually care about.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindIO
	KindMount
	KindUnmount
	KindConcurrency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindIO:
		return "io"
	case KindMount:
		return "mount"
	case KindUnmount:
		return "unmount"
	case KindConcurrency:
		return "concurrency"
	default:
		return "unknown"
	}
}

var codeKinds = map[Code]Kind{
	CodeInvalidInput:    KindValidation,
	CodeDuplicateName:   KindValidation,
	CodeBrokenChain:     KindValidation,
	CodeModInUse:        KindValidation,
	CodeNotFound:        KindNotFound,
	CodeArchive:         KindIO,
	CodePermission:      KindIO,
	CodeFilesystem:      KindIO,
	CodeStore:           KindIO,
	CodeDeployFailed:    KindMount,
	CodeUndeployFailed:  KindUnmount,
	CodeAlreadyDeployed: KindConcurrency,
	CodeChainMutated:    KindConcurrency,
	CodeGameDeployed:    KindConcurrency,
}

// Sentinels usable with errors.Is. Matching is by code only.
var (
	ErrInvalidInput    = New(CodeInvalidInput, "invalid input")
	ErrDuplicateName   = New(CodeDuplicateName, "name already in use")
	ErrNotFound        = New(CodeNotFound, "not found")
	ErrBrokenChain     = New(CodeBrokenChain, "mod entry references a missing mod")
	ErrModInUse        = New(CodeModInUse, "mod is still referenced by profiles")
	ErrDeployFailed    = New(CodeDeployFailed, "deploy failed")
	ErrUndeployFailed  = New(CodeUndeployFailed, "undeploy failed")
	ErrAlreadyDeployed = New(CodeAlreadyDeployed, "a profile is already deployed for this game")
	ErrChainMutated    = New(CodeChainMutated, "load order changed during resolution")
	ErrGameDeployed    = New(CodeGameDeployed, "game has an active deployment")
)

// Error is a structured error with a code, details and an optional cause.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Wrapped error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
		}
		b.WriteString(")")
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, ": %v", e.Wrapped)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the family of the error's code.
func (e *Error) Kind() Kind {
	return codeKinds[e.Code]
}

// With attaches a detail and returns the receiver for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns nil when err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Wrapped: err}
}

func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if e.Code == code {
				return true
			}
			err = e.Wrapped
			continue
		}
		return false
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind()
	}
	return KindUnknown
}

package container

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies container errors.
type ErrorCode uint16

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeUnknownKey
	ErrCodeAlreadyDisposed
	ErrCodeReentrantConstruction
	ErrCodeTypeMismatch
)

var codeNames = map[ErrorCode]string{
	ErrCodeUnknown:               "UNKNOWN",
	ErrCodeUnknownKey:            "UNKNOWN_KEY",
	ErrCodeAlreadyDisposed:       "ALREADY_DISPOSED",
	ErrCodeReentrantConstruction: "REENTRANT_CONSTRUCTION",
	ErrCodeTypeMismatch:          "TYPE_MISMATCH",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", c)
}

// Error is the error type returned by containers and factories. Errors raised
// by a service's own constructor are never wrapped in an *Error.
type Error struct {
	Code    ErrorCode
	Message string
	Key     string
	Cause   error
	Chain   []string
}

// Sentinels for errors.Is. Matching is by code.
var (
	ErrUnknownKey            = &Error{Code: ErrCodeUnknownKey}
	ErrAlreadyDisposed       = &Error{Code: ErrCodeAlreadyDisposed}
	ErrReentrantConstruction = &Error{Code: ErrCodeReentrantConstruction}
	ErrTypeMismatch          = &Error{Code: ErrCodeTypeMismatch}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s]", e.Code))

	if e.Key != "" {
		b.WriteString(fmt.Sprintf(" key=%q:", e.Key))
	}

	if e.Message != "" {
		b.WriteString(" ")
		b.WriteString(e.Message)
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func newError(code ErrorCode, key, message string) *Error {
	return &Error{Code: code, Key: key, Message: message}
}

func errUnknownKey(key string) *Error {
	return newError(ErrCodeUnknownKey, key, "no registration for key")
}

// AlreadyDisposed builds the error returned for operations on a torn-down
// container or factory. what names the disposed thing, e.g. "factory 3f2c…".
func AlreadyDisposed(key, what string) *Error {
	return newError(ErrCodeAlreadyDisposed, key, what+" has been disposed")
}

func errReentrant(chain []string) *Error {
	e := newError(
		ErrCodeReentrantConstruction,
		chain[len(chain)-1],
		fmt.Sprintf("constructor resolved a key under construction: %s", strings.Join(chain, " -> ")),
	)
	e.Chain = chain
	return e
}

func errTypeMismatch(key, want string, got any) *Error {
	return newError(ErrCodeTypeMismatch, key, fmt.Sprintf("resolved to %T, want %s", got, want))
}

func IsUnknownKey(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeUnknownKey
}

func IsAlreadyDisposed(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeAlreadyDisposed
}

func IsReentrantConstruction(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeReentrantConstruction
}

func IsTypeMismatch(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeTypeMismatch
}

package types

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories from the error taxonomy.
type Kind string

const (
	KindSpawnFailed        Kind = "spawn_failed"
	KindServerClosed       Kind = "server_closed"
	KindRequestTimeout     Kind = "request_timeout"
	KindDecodeFailed       Kind = "decode_failed"
	KindMalformedResponse  Kind = "malformed_response"
	KindMethodNotSupported Kind = "method_not_supported"
	KindOutsideWorkspace   Kind = "outside_workspace"
	KindProtectedConfig    Kind = "protected_config"
	KindLockDenied         Kind = "lock_denied"
	KindStaleRead          Kind = "stale_read"
	KindRunDenied          Kind = "run_denied"
	KindInitializeFailed   Kind = "initialize_failed"
)

// Error is the core's typed error. LanguageID is set when the error
// originated inside an LSP client so callers can apply the "[<language>]"
// attribution prefix required by spec §7; it is left empty for errors the
// core raises about itself.
type Error struct {
	Kind       Kind
	LanguageID LanguageID
	Method     string
	Message    string
	Wrapped    error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Method != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Method)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Wrapped }

func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func newErr(kind Kind, lang LanguageID, method, msg string, wrapped error) *Error {
	return &Error{Kind: kind, LanguageID: lang, Method: method, Message: msg, Wrapped: wrapped}
}

func SpawnFailed(lang LanguageID, msg string, wrapped error) error {
	return newErr(KindSpawnFailed, lang, "", msg, wrapped)
}

func InitializeFailed(lang LanguageID, msg string, wrapped error) error {
	return newErr(KindInitializeFailed, lang, "", msg, wrapped)
}

func ServerClosed(lang LanguageID, method string) error {
	return newErr(KindServerClosed, lang, method, "server closed connection", nil)
}

func RequestTimeout(lang LanguageID, method string) error {
	return newErr(KindRequestTimeout, lang, method, fmt.Sprintf("request timed out: %s", method), nil)
}

func DecodeFailed(lang LanguageID, method string, wrapped error) error {
	return newErr(KindDecodeFailed, lang, method, fmt.Sprintf("failed to decode response for %s: %v", method, wrapped), wrapped)
}

func MalformedResponse(lang LanguageID, msg string) error {
	return newErr(KindMalformedResponse, lang, "", msg, nil)
}

func MethodNotSupported(lang LanguageID, method string) error {
	return newErr(KindMethodNotSupported, lang, method, fmt.Sprintf("no server configured to handle %q", method), nil)
}

// OutsideWorkspace never includes the resolved path, only the original
// input, per §4.3's information-leakage requirement.
func OutsideWorkspace(original string) error {
	return newErr(KindOutsideWorkspace, "", "", fmt.Sprintf("path is outside every workspace root: %s", original), nil)
}

func ProtectedConfig(original string) error {
	return newErr(KindProtectedConfig, "", "", fmt.Sprintf("path refers to a protected configuration file: %s", original), nil)
}

func LockDenied(path, owner string) error {
	return newErr(KindLockDenied, "", "", fmt.Sprintf("lock on %s is held by another owner", path), nil)
}

func StaleReadError(path string) error {
	return newErr(KindStaleRead, "", "", fmt.Sprintf("%s changed on disk since it was last read", path), nil)
}

func RunDenied(command string) error {
	return newErr(KindRunDenied, "", "", fmt.Sprintf("command not on allowlist: %s", command), nil)
}

// AsError reports whether err is a *Error and returns it.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Package mongoerr provides the small, stable set of MongoDB-compatible
// error codes this engine can produce. Grounded on the error code table in
// FerretDB's internal/handlers/commonerrors package, restated here as a
// concrete struct type (mirroring the teacher's QueryError in
// legacy_types.go) rather than a family of typed exceptions, per spec.md
// §9's "replace exceptions with a result/either value" design note.
package mongoerr

import "fmt"

// Code is a MongoDB wire error code.
type Code int32

// The codes this engine is able to produce, per spec.md §7/§10.
const (
	CodeBadValue             Code = 14 // also used for TypeMismatch shape errors
	CodeCommandNotFound      Code = 59
	CodeCursorNotFound       Code = 43
	CodeNoSuchTransaction    Code = 251
	CodeDuplicateKey         Code = 11000
	CodeNotImplemented       Code = 238
	CodeNamespaceNotFound    Code = 26
	CodeFailedToParse        Code = 9
	CodeInvalidNamespace     Code = 73
	CodeStageInvalid         Code = 40323
	CodeConflictingUpdateOps Code = 40
)

// codeNames maps a Code to its MongoDB codeName string.
var codeNames = map[Code]string{
	CodeBadValue:             "BadValue",
	CodeCommandNotFound:      "CommandNotFound",
	CodeCursorNotFound:       "CursorNotFound",
	CodeNoSuchTransaction:    "NoSuchTransaction",
	CodeDuplicateKey:         "DuplicateKey",
	CodeNotImplemented:       "NotImplemented",
	CodeNamespaceNotFound:    "NamespaceNotFound",
	CodeFailedToParse:        "FailedToParse",
	CodeInvalidNamespace:     "InvalidNamespace",
	CodeStageInvalid:         "StageInvalid",
	CodeConflictingUpdateOps: "ConflictingUpdateOperators",
}

// Name returns the MongoDB codeName for c, or "Error" if unknown.
func (c Code) Name() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "Error"
}

// ErrorLabel is one of the transaction retry labels spec.md §7 requires.
type ErrorLabel string

const (
	LabelTransientTransactionError      ErrorLabel = "TransientTransactionError"
	LabelUnknownTransactionCommitResult ErrorLabel = "UnknownTransactionCommitResult"
	LabelUnsupportedFeature             ErrorLabel = "UnsupportedFeature"
)

// Error is the concrete error type every internal package returns when it
// needs to surface a stable MongoDB error code. The dispatcher is the only
// place that turns one into a response document.
type Error struct {
	Code    Code
	Message string
	Labels  []ErrorLabel
}

// New builds an Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithLabel returns a copy of e with label appended.
func (e *Error) WithLabel(label ErrorLabel) *Error {
	cp := *e
	cp.Labels = append(append([]ErrorLabel{}, e.Labels...), label)
	return &cp
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d, codeName %s)", e.Message, e.Code, e.Code.Name())
}

// Unsupported builds the standard "excluded feature" error: NotImplemented
// with the UnsupportedFeature label, as spec.md §4.3/§4.6/§7 require for
// every deliberately-excluded operator, stage, or option.
func Unsupported(format string, args ...interface{}) *Error {
	return New(CodeNotImplemented, format, args...).WithLabel(LabelUnsupportedFeature)
}

// BadValue builds a validation failure.
func BadValue(format string, args ...interface{}) *Error {
	return New(CodeBadValue, format, args...)
}

// DuplicateKey builds a unique-index violation failure.
func DuplicateKey(format string, args ...interface{}) *Error {
	return New(CodeDuplicateKey, format, args...)
}

// NoSuchTransaction builds a transaction-state failure, optionally tagged
// TransientTransactionError for non-terminal commands per spec.md §4.9.
func NoSuchTransaction(transient bool, format string, args ...interface{}) *Error {
	e := New(CodeNoSuchTransaction, format, args...)
	if transient {
		e = e.WithLabel(LabelTransientTransactionError)
	}
	return e
}

// CommandNotFound builds an unknown-command failure.
func CommandNotFound(name string) *Error {
	return New(CodeCommandNotFound, "no such command: '%s'", name)
}

// As extracts *Error from err, following the same contract as errors.As.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// Package sdlerrors implements the engine's error taxonomy: the structural,
// semantic, and runtime/interactive error codes from the compiler/runtime
// error design, plus the {Kind, Code, UnitErrorKind, Message} shape the
// interactive control surface retrieves compile errors in.
//
// The shape is grounded on the teacher's internal/errors package
// (SentraError with Type/Message/Location and WithSource/WithStack
// builders); the taxonomy itself is the engine's own.
package sdlerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies which surface an error was raised against.
type Kind string

const (
	KindVariable Kind = "Variable"
	KindUnits    Kind = "Units"
	KindModel    Kind = "Model"
)

// UnitErrorKind refines KindUnits errors. Unit *checking* itself is an
// external collaborator (spec §1); the engine only needs to be able to
// carry and report this classification through the interactive surface.
type UnitErrorKind string

const (
	UnitNotApplicable UnitErrorKind = "NotApplicable"
	UnitConsistency   UnitErrorKind = "Consistency"
	UnitDefinition    UnitErrorKind = "Definition"
	UnitInference     UnitErrorKind = "Inference"
)

// Code is the structural/semantic/runtime error code enum.
type Code string

const (
	// Structural
	CodeBadModelName                       Code = "BadModelName"
	CodeDoesNotExist                        Code = "DoesNotExist"
	CodeDuplicateVariable                   Code = "DuplicateVariable"
	CodeEmptyEquation                       Code = "EmptyEquation"
	CodeBadTable                            Code = "BadTable"
	CodeBadDimensionName                    Code = "BadDimensionName"
	CodeMismatchedDimensions                Code = "MismatchedDimensions"
	CodeArrayReferenceNeedsExplicitSubscript Code = "ArrayReferenceNeedsExplicitSubscripts"
	CodeDimensionInScalarContext            Code = "DimensionInScalarContext"
	CodeArraysNotImplemented                Code = "ArraysNotImplemented"
	CodeTodoArrayBuiltin                    Code = "TodoArrayBuiltin"
	CodeTodoStarRange                       Code = "TodoStarRange"
	CodeTodoRange                           Code = "TodoRange"
	CodeBadBuiltinArgs                      Code = "BadBuiltinArgs"

	// Semantic
	CodeUnknownDependency Code = "UnknownDependency"
	CodeNotSimulatable    Code = "NotSimulatable"
	CodeCircularDependency Code = "CircularDependency"
	CodeUnitMismatch      Code = "UnitMismatch"

	// Runtime / interactive
	CodeBadOverride Code = "BadOverride"
	CodeGeneric     Code = "Generic"
)

// Location pinpoints a variable/model the error applies to. Source-text
// positions are not tracked here: surface-syntax parsing is out of scope
// (spec §1); the engine only ever sees an already-canonicalized datamodel.
type Location struct {
	Model    string
	Variable string
}

// EngineError is the error type returned across every compiler and runtime
// boundary in the engine.
type EngineError struct {
	Kind          Kind
	Code          Code
	UnitErrorKind UnitErrorKind
	Message       string
	Location      Location
	cause         error
}

func (e *EngineError) Error() string {
	if e.Location.Variable != "" {
		return fmt.Sprintf("%s/%s in %s.%s: %s", e.Kind, e.Code, e.Location.Model, e.Location.Variable, e.Message)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *EngineError) Unwrap() error { return e.cause }

// New builds a bare EngineError.
func New(kind Kind, code Code, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithLocation attaches a model/variable location.
func (e *EngineError) WithLocation(model, variable string) *EngineError {
	e.Location = Location{Model: model, Variable: variable}
	return e
}

// WithUnitKind attaches a UnitErrorKind; only meaningful when Kind == KindUnits.
func (e *EngineError) WithUnitKind(k UnitErrorKind) *EngineError {
	e.UnitErrorKind = k
	return e
}

// Wrap captures cause with a stack trace (via github.com/pkg/errors) and
// attaches it as the EngineError's cause, so the compiler can report both
// the structured code and the underlying Go error's stack for diagnostics.
func Wrap(cause error, kind Kind, code Code, format string, args ...interface{}) *EngineError {
	return &EngineError{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		cause:   errors.WithStack(cause),
	}
}

// Variable, Model, Units are terse constructors for the common cases.
func Variable(code Code, format string, args ...interface{}) *EngineError {
	return New(KindVariable, code, format, args...)
}

func Model(code Code, format string, args ...interface{}) *EngineError {
	return New(KindModel, code, format, args...)
}

func Units(kind UnitErrorKind, format string, args ...interface{}) *EngineError {
	return New(KindUnits, CodeUnitMismatch, format, args...).WithUnitKind(kind)
}

// Generic wraps ABI-boundary failures (NUL bytes, invalid UTF-8, invalid
// discriminants, null pointers, invalid ranges) that have no more specific
// code.
func Generic(format string, args ...interface{}) *EngineError {
	return New(KindModel, CodeGeneric, format, args...)
}

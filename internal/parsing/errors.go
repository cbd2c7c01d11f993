package parsing

import (
	"errors"
	"fmt"
)

// ParseError represents an error detected while turning an AST into a
// query model.
//
// Parse errors include:
//   - Unsupported operator: a call signature is not registered
//   - Unsupported expression: the chain root is not a data source
//   - Accessor not found: a transparent identifier member cannot be located
//   - Invalid arguments: an operator call has the wrong argument shape
//   - Invalid operator sequence: an operator cannot follow its source
//
// All parse errors abort the current parse and are not retryable.
type ParseError struct {
	// Code identifies the error category.
	Code ParseErrorCode

	// Message is a human-readable description.
	Message string

	// Expr is the rendering of the offending sub-expression, if any.
	Expr string
}

// ParseErrorCode categorizes parse errors.
type ParseErrorCode string

const (
	// ErrCodeUnsupportedOperator indicates a call signature with no node type.
	ErrCodeUnsupportedOperator ParseErrorCode = "UNSUPPORTED_OPERATOR"

	// ErrCodeUnsupportedExpression indicates a root that is neither an
	// operator call nor a sequence-typed data source.
	ErrCodeUnsupportedExpression ParseErrorCode = "UNSUPPORTED_EXPRESSION"

	// ErrCodeAccessorNotFound indicates transparent identifier flattening
	// could not find the requested member.
	ErrCodeAccessorNotFound ParseErrorCode = "ACCESSOR_NOT_FOUND"

	// ErrCodeInvalidArguments indicates an operator call with arguments the
	// node type cannot interpret.
	ErrCodeInvalidArguments ParseErrorCode = "INVALID_ARGUMENTS"

	// ErrCodeInvalidOperatorSequence indicates an operator applied where the
	// model cannot accept it, such as ThenBy without OrderBy.
	ErrCodeInvalidOperatorSequence ParseErrorCode = "INVALID_OPERATOR_SEQUENCE"
)

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Expr != "" {
		return fmt.Sprintf("%s: could not parse expression '%s': %s", e.Code, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnsupportedOperatorError returns true if err is an unsupported operator
// error. Uses errors.As to handle wrapped errors.
func IsUnsupportedOperatorError(err error) bool {
	return hasParseCode(err, ErrCodeUnsupportedOperator)
}

// IsUnsupportedExpressionError returns true if err is an unsupported
// expression error.
func IsUnsupportedExpressionError(err error) bool {
	return hasParseCode(err, ErrCodeUnsupportedExpression)
}

// IsAccessorNotFoundError returns true if err is an accessor not found error.
func IsAccessorNotFoundError(err error) bool {
	return hasParseCode(err, ErrCodeAccessorNotFound)
}

// IsInvalidArgumentsError returns true if err is an invalid arguments error.
func IsInvalidArgumentsError(err error) bool {
	return hasParseCode(err, ErrCodeInvalidArguments)
}

// IsInvalidOperatorSequenceError returns true if err is an invalid operator
// sequence error.
func IsInvalidOperatorSequenceError(err error) bool {
	return hasParseCode(err, ErrCodeInvalidOperatorSequence)
}

// ErrorCode returns the code of a parse error anywhere in err's chain, or
// "" if there is none.
func ErrorCode(err error) ParseErrorCode {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

func hasParseCode(err error, code ParseErrorCode) bool {
	return ErrorCode(err) == code
}

// NewUnsupportedOperatorError creates a ParseError for an unregistered
// call signature.
func NewUnsupportedOperatorError(expr, declaring, name string) *ParseError {
	return &ParseError{
		Code:    ErrCodeUnsupportedOperator,
		Message: fmt.Sprintf("This overload of the method '%s.%s' is currently not supported.", declaring, name),
		Expr:    expr,
	}
}

// NewAccessorNotFoundError creates a ParseError for a member that cannot be
// located inside a transparent identifier carrier.
func NewAccessorNotFoundError(expr, member, reason string) *ParseError {
	return &ParseError{
		Code:    ErrCodeAccessorNotFound,
		Message: fmt.Sprintf("cannot resolve member '%s': %s", member, reason),
		Expr:    expr,
	}
}

func invalidArguments(expr string, format string, args ...any) *ParseError {
	return &ParseError{
		Code:    ErrCodeInvalidArguments,
		Message: fmt.Sprintf(format, args...),
		Expr:    expr,
	}
}

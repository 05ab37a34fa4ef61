// Package sqlgraph classifies driver errors raised while flushing
// pending entity changes.
package sqlgraph

import (
	"errors"
	"strings"

	"github.com/syssam/veil"
)

// Constraint is the kind of database constraint an error violated.
type Constraint uint8

// Constraint kinds.
const (
	NoConstraint Constraint = iota
	Unique
	ForeignKey
	Check
)

var constraintNames = [...]string{
	NoConstraint: "none",
	Unique:       "unique",
	ForeignKey:   "foreign key",
	Check:        "check",
}

// String returns the constraint kind name.
func (c Constraint) String() string {
	if int(c) < len(constraintNames) {
		return constraintNames[c]
	}
	return "unknown"
}

// errorCoder is implemented by drivers that expose a SQLSTATE code as
// a method, for example pgx.
type errorCoder interface {
	Code() string
}

// errorNumberer is implemented by drivers that expose a numeric code.
type errorNumberer interface {
	Number() uint16
}

// sqlStateError is implemented by *pq.Error.
type sqlStateError interface {
	SQLState() string
}

// signature describes how each driver reports one constraint kind.
type signature struct {
	kind     Constraint
	sqlstate string
	numbers  []uint16
	messages []string
}

var signatures = []signature{
	{
		kind:     Unique,
		sqlstate: "23505",
		numbers:  []uint16{1062},
		messages: []string{"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	},
	{
		kind:     ForeignKey,
		sqlstate: "23503",
		numbers:  []uint16{1451, 1452},
		messages: []string{"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	},
	{
		kind:     Check,
		sqlstate: "23514",
		numbers:  []uint16{3819},
		messages: []string{"Error 3819", "violates check constraint", "CHECK constraint failed"},
	},
}

// Classify reports which constraint err violated, if any. Codes exposed
// by the driver error types take precedence over message matching.
func Classify(err error) Constraint {
	if err == nil {
		return NoConstraint
	}
	state, hasState := sqlState(err)
	num, hasNum := asError[errorNumberer](err)
	for _, sig := range signatures {
		if hasState && state == sig.sqlstate {
			return sig.kind
		}
		if hasNum {
			for _, n := range sig.numbers {
				if num.Number() == n {
					return sig.kind
				}
			}
		}
	}
	msg := err.Error()
	for _, sig := range signatures {
		for _, m := range sig.messages {
			if strings.Contains(msg, m) {
				return sig.kind
			}
		}
	}
	return NoConstraint
}

func sqlState(err error) (string, bool) {
	if e, ok := asError[sqlStateError](err); ok {
		return e.SQLState(), true
	}
	if e, ok := asError[errorCoder](err); ok {
		return e.Code(), true
	}
	return "", false
}

// IsConstraintError returns true if the error resulted from a database
// constraint violation, or is already a veil.ConstraintError.
func IsConstraintError(err error) bool {
	return veil.IsConstraintError(err) || Classify(err) != NoConstraint
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool { return Classify(err) == Unique }

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool { return Classify(err) == ForeignKey }

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool { return Classify(err) == Check }

// Wrap converts a constraint violation into a veil.ConstraintError
// describing op. Other errors are returned unchanged.
func Wrap(op string, err error) error {
	if err == nil || veil.IsConstraintError(err) {
		return err
	}
	if c := Classify(err); c != NoConstraint {
		return veil.NewConstraintError(op+": "+c.String()+" constraint", err)
	}
	return err
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

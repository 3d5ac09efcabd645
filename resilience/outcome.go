package resilience

import "context"

// OutcomeKind classifies the result of one attempt.
type OutcomeKind int

const (
	// OutcomeSuccess means the attempt produced a value.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeTransient means the attempt failed and may be retried.
	OutcomeTransient
	// OutcomePermanent means the attempt failed and retrying cannot help.
	OutcomePermanent
)

// String returns the string representation of the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of an operation. Callers must classify
// their own failures so retry and breaker logic know what to do with them.
type Outcome[T any] struct {
	Kind  OutcomeKind
	Value T
	Err   error
}

// Operation is a unit of work that reports a classified outcome.
type Operation[T any] func(ctx context.Context) Outcome[T]

// Succeeded returns a successful outcome.
func Succeeded[T any](v T) Outcome[T] {
	return Outcome[T]{Kind: OutcomeSuccess, Value: v}
}

// TransientFailure returns a retryable failure. A nil err is replaced by
// ErrUnclassifiedFailure.
func TransientFailure[T any](err error) Outcome[T] {
	if err == nil {
		err = ErrUnclassifiedFailure
	}
	return Outcome[T]{Kind: OutcomeTransient, Err: err}
}

// PermanentFailure returns a non-retryable failure. A nil err is replaced
// by ErrUnclassifiedFailure.
func PermanentFailure[T any](err error) Outcome[T] {
	if err == nil {
		err = ErrUnclassifiedFailure
	}
	return Outcome[T]{Kind: OutcomePermanent, Err: Permanent(err)}
}

// OutcomeOf classifies a conventional (value, error) pair. Errors wrapped
// with Permanent are permanent; every other error is transient.
func OutcomeOf[T any](v T, err error) Outcome[T] {
	switch {
	case err == nil:
		return Succeeded(v)
	case IsPermanent(err):
		return Outcome[T]{Kind: OutcomePermanent, Err: err}
	default:
		return TransientFailure[T](err)
	}
}

// OK reports whether the outcome is a success.
func (o Outcome[T]) OK() bool { return o.Kind == OutcomeSuccess }

// Normalized returns o with a non-nil Err on every failure, so outcomes
// built as literals carry a cause like those built by the constructors.
func (o Outcome[T]) Normalized() Outcome[T] {
	if o.Kind == OutcomeSuccess || o.Err != nil {
		return o
	}
	o.Err = ErrUnclassifiedFailure
	if o.Kind == OutcomePermanent {
		o.Err = Permanent(o.Err)
	}
	return o
}

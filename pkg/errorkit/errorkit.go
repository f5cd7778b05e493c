// Package errorkit provides the error handling tooling of the module.
package errorkit

import (
	"errors"
	"fmt"
	"strings"
)

// Error is an error implementation that makes it possible
// to declare sentinel error values as exported constants.
//
//	const ErrSomething errorkit.Error = "something went wrong"
type Error string

// Error implements the error interface.
func (err Error) Error() string { return string(err) }

// Wrap bundles another error value together with this Error.
// The returned error matches both of them with errors.Is and errors.As.
func (err Error) Wrap(oth error) error {
	if oth == nil {
		return err
	}
	return wrapped{Owner: err, Cause: oth}
}

// F formats an error value that wraps this Error.
func (err Error) F(format string, a ...any) error {
	return err.Wrap(fmt.Errorf(format, a...))
}

type wrapped struct {
	Owner Error
	Cause error // never nil
}

func (w wrapped) Error() string {
	return fmt.Sprintf("[%s] %s", w.Owner, w.Cause.Error())
}

func (w wrapped) As(target any) bool {
	return errors.As(w.Owner, target) || errors.As(w.Cause, target)
}

func (w wrapped) Is(target error) bool {
	return errors.Is(w.Owner, target) || errors.Is(w.Cause, target)
}

// Merge combines the given non nil error values into a single error value.
// If no valid error is given, nil is returned.
// If only a single non nil error value is given, that error value is returned.
func Merge(errs ...error) error {
	var vs []error
	for _, err := range errs {
		if err != nil {
			vs = append(vs, err)
		}
	}
	switch len(vs) {
	case 0:
		return nil
	case 1:
		return vs[0]
	default:
		return multiError(vs)
	}
}

type multiError []error

func (errs multiError) Error() string {
	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "\n")
}

func (errs multiError) Unwrap() []error { return errs }

// Finish is a helper function that can be used from a deferred context.
//
//	defer errorkit.Finish(&returnError, rows.Close)
func Finish(returnErr *error, blk func() error) {
	*returnErr = Merge(*returnErr, blk())
}

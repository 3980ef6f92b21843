package registry

import "errors"

var (
	ErrAlreadyExists   = errors.New("already exists")
	ErrNotFound        = errors.New("not found")
	ErrInvalidURL      = errors.New("invalid event sink url")
	ErrInvalidIdentity = errors.New("invalid attribute identity")
)

// existsError carries a user-facing duplicate message while matching
// ErrAlreadyExists under errors.Is.
type existsError struct {
	msg string
}

func (e *existsError) Error() string { return e.msg }

func (e *existsError) Is(target error) bool { return target == ErrAlreadyExists }

var (
	ErrSinkExists = &existsError{
		msg: "event sink url already exists, cannot create it twice; register the sink with a different url",
	}
	ErrAttributeExists = &existsError{msg: "the attribute already exists"}
)

package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// InactivePredecessorError is returned when the relation to be superseded or
// suppressed has already been retired.
type InactivePredecessorError struct {
	RelationID string
	Reason     string
}

func (e InactivePredecessorError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("relation %s is no longer active", e.RelationID)
	}
	return fmt.Sprintf("relation %s is no longer active: %s", e.RelationID, e.Reason)
}

func (e InactivePredecessorError) Is(target error) bool {
	_, ok := target.(InactivePredecessorError)
	if ok {
		return true
	}
	_, ok = target.(*InactivePredecessorError)
	return ok
}

// ValidationError reports caller input that cannot be accepted.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool {
	_, ok := target.(ValidationError)
	if ok {
		return true
	}
	_, ok = target.(*ValidationError)
	return ok
}

// StorageError is a failed or rolled back transactional write. No partial
// state survives it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: storage failure: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	_, ok := target.(*StorageError)
	return ok
}

// LookupError is a failed read, distinct from absence.
type LookupError struct {
	Op  string
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: lookup failure: %v", e.Op, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

func (e *LookupError) Is(target error) bool {
	_, ok := target.(*LookupError)
	return ok
}

// Sentinels for errors.Is.
var (
	ErrNotFound            = NotFoundError{}
	ErrInactivePredecessor = InactivePredecessorError{}
	ErrValidation          = ValidationError{}
	ErrStorage             = &StorageError{}
	ErrLookup              = &LookupError{}
)

package repositories

type ErrNotFound struct {
}

func (e *ErrNotFound) Error() string {
	return "not found"
}

func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

// ErrConflict is returned by conditional writes when the caller's
// last-observed version no longer matches the stored version.
type ErrConflict struct {
}

func (e *ErrConflict) Error() string {
	return "version conflict"
}

func IsConflict(err error) bool {
	_, ok := err.(*ErrConflict)
	return ok
}

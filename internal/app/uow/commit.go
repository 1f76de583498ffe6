package uow

import "errors"

type commitAnyway struct {
	err error
}

func (c *commitAnyway) Error() string { return c.err.Error() }

func (c *commitAnyway) Unwrap() error { return c.err }

// CommitAnyway marks err as a result whose staged writes must still be committed. The error
// keeps matching its cause through errors.Is.
func CommitAnyway(err error) error {
	if err == nil {
		return nil
	}
	return &commitAnyway{err: err}
}

// ShouldCommit reports whether the unit must commit although the handler returned err.
func ShouldCommit(err error) bool {
	if err == nil {
		return true
	}
	var c *commitAnyway
	return errors.As(err, &c)
}

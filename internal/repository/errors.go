package repository

import "errors"

// ErrVersionConflict is returned when an optimistic concurrent update loses
// the race: the row changed between read and write. Callers re-read and retry.
var ErrVersionConflict = errors.New("repository: version conflict")

// ErrEnrollmentLimit is returned when appending an enrollment to a company
// purchase would exceed its purchased quantity.
var ErrEnrollmentLimit = errors.New("repository: enrollment ids at quantity limit")

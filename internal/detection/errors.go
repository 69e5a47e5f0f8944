package detection

import "errors"

// MaxInputs caps the number of input references accepted for one task.
const MaxInputs = 10

var (
	ErrNoInputs         = errors.New("at least one input reference is required")
	ErrTooManyInputs    = errors.New("too many input references")
	ErrEmptyClipID      = errors.New("clip id is required")
	ErrRecordExists     = errors.New("detection record already exists")
	ErrRecordNotFound   = errors.New("detection record not found")
	ErrRecordTerminal   = errors.New("detection record already finished")
	ErrCategoryNotFound = errors.New("category not found")
	ErrClipNotFound     = errors.New("clip not found")
	ErrResultPending    = errors.New("result not available yet")
	ErrMalformedResult  = errors.New("malformed detection result")
	ErrLedgerWrite      = errors.New("task queued but ledger update failed")
	ErrAlreadyRunning   = errors.New("reconciler already running")
)

// IsValidation reports whether err was caused by caller input rather than by
// the queue, the result store or the ledger.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNoInputs) ||
		errors.Is(err, ErrTooManyInputs) ||
		errors.Is(err, ErrEmptyClipID)
}

// IsNotFound reports whether err means a referenced entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrClipNotFound)
}

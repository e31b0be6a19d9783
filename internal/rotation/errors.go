package rotation

import "errors"

// ErrEmptyPool means no member was available to take the chore. The chore
// is left unassigned; callers treat this as a warning.
var ErrEmptyPool = errors.New("no eligible members")

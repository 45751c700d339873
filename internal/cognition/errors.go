package cognition

import "errors"

// ErrNoPlan means the reply carries no usable task graph and should be
// spoken as text.
var ErrNoPlan = errors.New("no task graph in reply")

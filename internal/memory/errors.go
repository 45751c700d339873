package memory

import "errors"

// ErrNotConnected is returned when the database could not be opened even
// after a reconnect attempt.
var ErrNotConnected = errors.New("memory store not connected")

package reflex

import "errors"

var (
	// ErrEmptyCorrection is returned when either side of a correction is blank.
	ErrEmptyCorrection = errors.New("correction needs both sides")

	// ErrEmptyPhrase is returned when an ignore phrase is blank.
	ErrEmptyPhrase = errors.New("ignore phrase is empty")
)

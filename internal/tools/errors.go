package tools

import "errors"

var (
	ErrDuplicate   = errors.New("tool already registered")
	ErrInvalidTool = errors.New("invalid tool definition")
)

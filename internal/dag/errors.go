package dag

import "errors"

var (
	ErrEmptyPlan         = errors.New("plan has no tasks")
	ErrInvalidTask       = errors.New("task without id or tool")
	ErrDuplicateTask     = errors.New("duplicate task id")
	ErrUnknownDependency = errors.New("dependency on unknown task")
	ErrCycle             = errors.New("dependency cycle")
)

package todos

import (
	"errors"

	"github.com/todo-1m/todosync/internal/app/changelog"
)

var (
	ErrTodoNotFound   = errors.New("todo not found")
	ErrTitleRequired  = errors.New("title is required")
	ErrMalformedID    = errors.New("malformed todo id")
	ErrEmptyBody      = errors.New("request body is required")
	ErrInvalidPayload = errors.New("invalid JSON payload")
)

// ErrStorage marks failures of the backing store.
var ErrStorage = changelog.ErrStorage

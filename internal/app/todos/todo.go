package todos

import (
	"strings"
	"time"

	"github.com/todo-1m/todosync/internal/app/changelog"
)

const DefaultPriority = "medium"

// Todo is a user task. Dependencies are weak references: ids of other todos
// that may no longer exist.
type Todo struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Completed    bool       `json:"completed"`
	CreatedAt    time.Time  `json:"createdAt"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	Dependencies []string   `json:"dependencies"`
	Image        string     `json:"image,omitempty"`
	Tags         []string   `json:"tags"`
	Priority     string     `json:"priority"`
}

func (t Todo) ResourceID() string   { return t.ID }
func (t Todo) ResourceType() string { return changelog.ResourceTypeTodo }

type CreateTodoRequest struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Completed    bool       `json:"completed"`
	DueDate      *time.Time `json:"dueDate"`
	Dependencies []string   `json:"dependencies"`
	Image        string     `json:"image"`
	Tags         []string   `json:"tags"`
	Priority     string     `json:"priority"`
}

// UpdateTodoRequest carries the mutable fields. Nil means unchanged.
type UpdateTodoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

func (r CreateTodoRequest) validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrTitleRequired
	}
	return nil
}

func (r UpdateTodoRequest) validate() error {
	if r.Title != nil && strings.TrimSpace(*r.Title) == "" {
		return ErrTitleRequired
	}
	return nil
}

func (r UpdateTodoRequest) normalized() UpdateTodoRequest {
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		r.Title = &title
	}
	return r
}

func (r CreateTodoRequest) build(id string, now time.Time) Todo {
	priority := strings.TrimSpace(r.Priority)
	if priority == "" {
		priority = DefaultPriority
	}
	var due *time.Time
	if r.DueDate != nil {
		d := r.DueDate.UTC()
		due = &d
	}
	deps := make([]string, 0, len(r.Dependencies))
	for _, dep := range r.Dependencies {
		if dep = strings.TrimSpace(dep); dep != "" {
			deps = append(deps, dep)
		}
	}
	return Todo{
		ID:           id,
		Title:        strings.TrimSpace(r.Title),
		Description:  r.Description,
		Completed:    r.Completed,
		CreatedAt:    now,
		DueDate:      due,
		Dependencies: deps,
		Image:        r.Image,
		Tags:         uniqueTags(r.Tags),
		Priority:     priority,
	}
}

func (t Todo) apply(patch UpdateTodoRequest) Todo {
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	return t
}

// uniqueTags keeps first-seen order.
func uniqueTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

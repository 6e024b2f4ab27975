package tasksvc

import (
	"encoding/json"
	"errors"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityNormal Priority = "Normal"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityTop    Priority = "Top"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityMedium, PriorityHigh, PriorityTop:
		return true
	}
	return false
}

// Task is owned by exactly one user. OwnerID never changes after creation.
type Task struct {
	ID          uint64     `json:"id" gorm:"primaryKey"`
	OwnerID     uint64     `json:"owner_id" gorm:"index;not null"`
	Title       string     `json:"title" gorm:"not null"`
	Description *string    `json:"description"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"due_date"`
	Priority    Priority   `json:"priority" gorm:"not null"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Apply writes the present fields of u onto t. CompletedAt is stamped with
// now when Completed goes from false to true and cleared when it goes back;
// otherwise it is left alone.
func (t *Task) Apply(u TaskUpdate, now time.Time) {
	if u.Completed.Set && u.Completed.Value != t.Completed {
		if u.Completed.Value {
			t.CompletedAt = &now
		} else {
			t.CompletedAt = nil
		}
		t.Completed = u.Completed.Value
	}

	if u.Title.Set {
		t.Title = u.Title.Value
	}
	if u.Description.Set {
		t.Description = u.Description.Ptr()
	}
	if u.DueDate.Set {
		t.DueDate = u.DueDate.Ptr()
	}
	if u.Priority.Set {
		t.Priority = u.Priority.Value
	}
}

// NewTask holds the caller-supplied fields of a task to create. An empty
// Priority means PriorityNormal.
type NewTask struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"due_date"`
	Priority    Priority   `json:"priority,omitempty"`
}

func (n NewTask) Validate() error {
	if n.Title == "" {
		return ErrInvalidArgument
	}
	if n.Priority != "" && !n.Priority.Valid() {
		return ErrInvalidArgument
	}
	return nil
}

// Task builds the stored form of n. Pointer fields are copied so the result
// shares nothing with the caller.
func (n NewTask) Task(ownerID uint64, now time.Time) Task {
	t := Task{
		OwnerID:     ownerID,
		Title:       n.Title,
		Description: clone(n.Description),
		Completed:   n.Completed,
		DueDate:     clone(n.DueDate),
		Priority:    n.Priority,
		CreatedAt:   now,
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	if t.Completed {
		t.CompletedAt = &now
	}
	return t
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Optional is a field of a sparse update. Set reports whether the field was
// present at all; Null whether it was present as JSON null.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// Ptr returns nil for an absent or null field.
func (o Optional[T]) Ptr() *T {
	if !o.Set || o.Null {
		return nil
	}
	v := o.Value
	return &v
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(b, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// TaskUpdate is a partial update; only fields with Set are applied.
// Description and DueDate may be null to clear them.
type TaskUpdate struct {
	Title       Optional[string]    `json:"title"`
	Description Optional[string]    `json:"description"`
	Completed   Optional[bool]      `json:"completed"`
	DueDate     Optional[time.Time] `json:"due_date"`
	Priority    Optional[Priority]  `json:"priority"`
}

// MarshalJSON omits absent fields so the result decodes back to u.
func (u TaskUpdate) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{})
	if u.Title.Set {
		m["title"] = u.Title
	}
	if u.Description.Set {
		m["description"] = u.Description
	}
	if u.Completed.Set {
		m["completed"] = u.Completed
	}
	if u.DueDate.Set {
		m["due_date"] = u.DueDate
	}
	if u.Priority.Set {
		m["priority"] = u.Priority
	}
	return json.Marshal(m)
}

func (u TaskUpdate) Validate() error {
	if u.Title.Set && (u.Title.Null || u.Title.Value == "") {
		return ErrInvalidArgument
	}
	if u.Completed.Set && u.Completed.Null {
		return ErrInvalidArgument
	}
	if u.Priority.Set && (u.Priority.Null || !u.Priority.Value.Valid()) {
		return ErrInvalidArgument
	}
	return nil
}

// TaskRepository stores tasks. Every lookup filters on owner and task ID
// together, so a task owned by someone else behaves exactly like a missing
// one.
type TaskRepository interface {
	Create(ownerID uint64, n NewTask) (Task, error)
	FindAll(ownerID uint64) ([]Task, error)
	Find(ownerID, taskID uint64) (Task, error)
	Update(ownerID, taskID uint64, u TaskUpdate) (Task, error)
	Delete(ownerID, taskID uint64) (bool, error)
}

// Auth identifies the caller of a task operation.
type Auth struct {
	UserID   uint64
	Username string
}

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTaskNotFound    = errors.New("task not found")
)

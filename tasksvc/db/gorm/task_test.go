package gorm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	libgorm "gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ichigozero/todokit/tasksvc"
)

const (
	alice uint64 = 1
	bob   uint64 = 2
)

func newRepository(t *testing.T) tasksvc.TaskRepository {
	t.Helper()

	db, err := libgorm.Open(sqlite.Open("file::memory:"), &libgorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, Migrate(db))
	return NewTaskRepository(db)
}

func TestCreateAndFind(t *testing.T) {
	r := newRepository(t)
	desc := "details"
	due := time.Now().Add(48 * time.Hour).UTC()

	created, err := r.Create(alice, tasksvc.NewTask{
		Title:       "write report",
		Description: &desc,
		DueDate:     &due,
		Priority:    tasksvc.PriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), created.ID)

	got, err := r.Find(alice, created.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, got.OwnerID)
	assert.Equal(t, "write report", got.Title)
	require.NotNil(t, got.Description)
	assert.Equal(t, "details", *got.Description)
	require.NotNil(t, got.DueDate)
	assert.WithinDuration(t, due, *got.DueDate, time.Millisecond)
	assert.Equal(t, tasksvc.PriorityHigh, got.Priority)
	assert.False(t, got.Completed)
	assert.Nil(t, got.CompletedAt)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestCreate_DefaultsAndCompleted(t *testing.T) {
	r := newRepository(t)

	task, err := r.Create(alice, tasksvc.NewTask{Title: "done", Completed: true})
	require.NoError(t, err)
	assert.Equal(t, tasksvc.PriorityNormal, task.Priority)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, task.CreatedAt, *task.CompletedAt)
}

func TestFindAll(t *testing.T) {
	r := newRepository(t)

	tasks, err := r.FindAll(alice)
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)

	_, err = r.Create(alice, tasksvc.NewTask{Title: "a1"})
	require.NoError(t, err)
	_, err = r.Create(bob, tasksvc.NewTask{Title: "b1"})
	require.NoError(t, err)
	_, err = r.Create(alice, tasksvc.NewTask{Title: "a2"})
	require.NoError(t, err)

	tasks, err = r.FindAll(alice)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a1", tasks[0].Title)
	assert.Equal(t, "a2", tasks[1].Title)
	assert.Less(t, tasks[0].ID, tasks[1].ID)
}

func TestOwnerIsolation(t *testing.T) {
	r := newRepository(t)

	task, err := r.Create(alice, tasksvc.NewTask{Title: "private"})
	require.NoError(t, err)

	_, err = r.Find(bob, task.ID)
	assert.ErrorIs(t, err, tasksvc.ErrTaskNotFound)

	_, err = r.Update(bob, task.ID, tasksvc.TaskUpdate{Title: tasksvc.Some("hacked")})
	assert.ErrorIs(t, err, tasksvc.ErrTaskNotFound)

	ok, err := r.Delete(bob, task.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.Find(alice, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "private", got.Title)
}

func TestUpdate(t *testing.T) {
	r := newRepository(t)
	desc := "old"

	task, err := r.Create(alice, tasksvc.NewTask{Title: "x", Description: &desc})
	require.NoError(t, err)

	updated, err := r.Update(alice, task.ID, tasksvc.TaskUpdate{
		Completed:   tasksvc.Some(true),
		Description: tasksvc.Null[string](),
	})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	require.NotNil(t, updated.CompletedAt)
	assert.Nil(t, updated.Description)
	assert.Equal(t, "x", updated.Title)

	stamp := *updated.CompletedAt
	again, err := r.Update(alice, task.ID, tasksvc.TaskUpdate{Completed: tasksvc.Some(true)})
	require.NoError(t, err)
	require.NotNil(t, again.CompletedAt)
	assert.WithinDuration(t, stamp, *again.CompletedAt, time.Millisecond)

	reopened, err := r.Update(alice, task.ID, tasksvc.TaskUpdate{Completed: tasksvc.Some(false)})
	require.NoError(t, err)
	assert.False(t, reopened.Completed)
	assert.Nil(t, reopened.CompletedAt)

	got, err := r.Find(alice, task.ID)
	require.NoError(t, err)
	assert.False(t, got.Completed)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.Description)
}

func TestDelete(t *testing.T) {
	r := newRepository(t)

	task, err := r.Create(alice, tasksvc.NewTask{Title: "x"})
	require.NoError(t, err)

	ok, err := r.Delete(alice, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Delete(alice, task.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Find(alice, task.ID)
	assert.ErrorIs(t, err, tasksvc.ErrTaskNotFound)
}

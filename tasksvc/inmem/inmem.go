package inmem

import (
	"sort"
	"sync"
	"time"

	"github.com/ichigozero/todokit/tasksvc"
)

type taskRepository struct {
	mtx    sync.RWMutex
	nextID uint64
	tasks  map[uint64]tasksvc.Task
	now    func() time.Time
}

func NewTaskRepository() tasksvc.TaskRepository {
	return NewTaskRepositoryWithClock(time.Now)
}

// NewTaskRepositoryWithClock stamps created_at and completed_at with now.
func NewTaskRepositoryWithClock(now func() time.Time) tasksvc.TaskRepository {
	return &taskRepository{
		nextID: 1,
		tasks:  make(map[uint64]tasksvc.Task),
		now:    now,
	}
}

func (r *taskRepository) Create(ownerID uint64, n tasksvc.NewTask) (tasksvc.Task, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	t := n.Task(ownerID, r.now())
	t.ID = r.nextID
	r.nextID++
	r.tasks[t.ID] = t

	return t, nil
}

func (r *taskRepository) FindAll(ownerID uint64) ([]tasksvc.Task, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	tasks := []tasksvc.Task{}
	for _, t := range r.tasks {
		if t.OwnerID == ownerID {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	return tasks, nil
}

func (r *taskRepository) Find(ownerID, taskID uint64) (tasksvc.Task, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	t, ok := r.tasks[taskID]
	if !ok || t.OwnerID != ownerID {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}
	return t, nil
}

func (r *taskRepository) Update(ownerID, taskID uint64, u tasksvc.TaskUpdate) (tasksvc.Task, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	t, ok := r.tasks[taskID]
	if !ok || t.OwnerID != ownerID {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}

	t.Apply(u, r.now())
	r.tasks[taskID] = t

	return t, nil
}

func (r *taskRepository) Delete(ownerID, taskID uint64) (bool, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	t, ok := r.tasks[taskID]
	if !ok || t.OwnerID != ownerID {
		return false, nil
	}
	delete(r.tasks, taskID)

	return true, nil
}

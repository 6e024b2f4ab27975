package gorm

import (
	"errors"
	"fmt"
	"time"

	"github.com/ichigozero/todokit/tasksvc"
	libgorm "gorm.io/gorm"
)

// Migrate creates or updates the tasks table.
func Migrate(db *libgorm.DB) error {
	return db.AutoMigrate(&tasksvc.Task{})
}

type taskRepository struct {
	db  *libgorm.DB
	now func() time.Time
}

func NewTaskRepository(db *libgorm.DB) tasksvc.TaskRepository {
	return &taskRepository{db: db, now: time.Now}
}

func (r *taskRepository) Create(ownerID uint64, n tasksvc.NewTask) (tasksvc.Task, error) {
	task := n.Task(ownerID, r.now())
	if err := r.db.Create(&task).Error; err != nil {
		return tasksvc.Task{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

func (r *taskRepository) FindAll(ownerID uint64) ([]tasksvc.Task, error) {
	tasks := []tasksvc.Task{}
	if err := r.db.Where("owner_id = ?", ownerID).Order("id").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *taskRepository) Find(ownerID, taskID uint64) (tasksvc.Task, error) {
	return find(r.db, ownerID, taskID)
}

func find(db *libgorm.DB, ownerID, taskID uint64) (tasksvc.Task, error) {
	var task tasksvc.Task
	err := db.Where("id = ? AND owner_id = ?", taskID, ownerID).First(&task).Error
	if errors.Is(err, libgorm.ErrRecordNotFound) {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}
	if err != nil {
		return tasksvc.Task{}, fmt.Errorf("find task: %w", err)
	}
	return task, nil
}

func (r *taskRepository) Update(ownerID, taskID uint64, u tasksvc.TaskUpdate) (tasksvc.Task, error) {
	var task tasksvc.Task
	err := r.db.Transaction(func(tx *libgorm.DB) error {
		var err error
		task, err = find(tx, ownerID, taskID)
		if err != nil {
			return err
		}

		task.Apply(u, r.now())
		if err := tx.Save(&task).Error; err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return nil
	})
	if err != nil {
		return tasksvc.Task{}, err
	}
	return task, nil
}

func (r *taskRepository) Delete(ownerID, taskID uint64) (bool, error) {
	result := r.db.Where("id = ? AND owner_id = ?", taskID, ownerID).Delete(&tasksvc.Task{})
	if result.Error != nil {
		return false, fmt.Errorf("delete task: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

package taskservice

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/todokit/tasksvc"
)

// Service runs task operations on behalf of an authenticated caller. The
// caller's user ID is the owner for every repository call.
type Service interface {
	CreateTask(ctx context.Context, a tasksvc.Auth, n tasksvc.NewTask) (tasksvc.Task, error)
	Tasks(ctx context.Context, a tasksvc.Auth) ([]tasksvc.Task, error)
	Task(ctx context.Context, a tasksvc.Auth, taskID uint64) (tasksvc.Task, error)
	UpdateTask(ctx context.Context, a tasksvc.Auth, taskID uint64, u tasksvc.TaskUpdate) (tasksvc.Task, error)
	DeleteTask(ctx context.Context, a tasksvc.Auth, taskID uint64) error
}

func New(t tasksvc.TaskRepository, logger log.Logger) Service {
	var svc Service
	{
		svc = NewBasicService(t)
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

type basicService struct {
	tasks tasksvc.TaskRepository
}

func NewBasicService(t tasksvc.TaskRepository) Service {
	return basicService{tasks: t}
}

func (s basicService) CreateTask(_ context.Context, a tasksvc.Auth, n tasksvc.NewTask) (tasksvc.Task, error) {
	if a.UserID == 0 {
		return tasksvc.Task{}, tasksvc.ErrInvalidArgument
	}
	if err := n.Validate(); err != nil {
		return tasksvc.Task{}, err
	}
	return s.tasks.Create(a.UserID, n)
}

func (s basicService) Tasks(_ context.Context, a tasksvc.Auth) ([]tasksvc.Task, error) {
	if a.UserID == 0 {
		return nil, tasksvc.ErrInvalidArgument
	}
	return s.tasks.FindAll(a.UserID)
}

func (s basicService) Task(_ context.Context, a tasksvc.Auth, taskID uint64) (tasksvc.Task, error) {
	if a.UserID == 0 {
		return tasksvc.Task{}, tasksvc.ErrInvalidArgument
	}
	return s.tasks.Find(a.UserID, taskID)
}

func (s basicService) UpdateTask(_ context.Context, a tasksvc.Auth, taskID uint64, u tasksvc.TaskUpdate) (tasksvc.Task, error) {
	if a.UserID == 0 {
		return tasksvc.Task{}, tasksvc.ErrInvalidArgument
	}
	if err := u.Validate(); err != nil {
		return tasksvc.Task{}, err
	}
	return s.tasks.Update(a.UserID, taskID, u)
}

func (s basicService) DeleteTask(_ context.Context, a tasksvc.Auth, taskID uint64) error {
	if a.UserID == 0 {
		return tasksvc.ErrInvalidArgument
	}

	ok, err := s.tasks.Delete(a.UserID, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return tasksvc.ErrTaskNotFound
	}
	return nil
}

package inmem

import (
	"sync"

	"github.com/ichigozero/todokit/usersvc"
)

type userRepository struct {
	mtx        sync.RWMutex
	nextID     uint64
	byID       map[uint64]usersvc.User
	byUsername map[string]uint64
	byEmail    map[string]uint64
}

// NewUserRepository returns an empty repository. The three indexes are
// guarded by one lock, so a Create is never observed half-applied.
func NewUserRepository() usersvc.UserRepository {
	return &userRepository{
		nextID:     1,
		byID:       make(map[uint64]usersvc.User),
		byUsername: make(map[string]uint64),
		byEmail:    make(map[string]uint64),
	}
}

func (r *userRepository) Create(u usersvc.User) (usersvc.User, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if _, ok := r.byUsername[u.Username]; ok {
		return usersvc.User{}, usersvc.ErrDuplicateUsername
	}
	if _, ok := r.byEmail[u.Email]; ok {
		return usersvc.User{}, usersvc.ErrDuplicateEmail
	}

	u.ID = r.nextID
	r.nextID++

	r.byID[u.ID] = u
	r.byUsername[u.Username] = u.ID
	r.byEmail[u.Email] = u.ID

	return u, nil
}

func (r *userRepository) FindByID(id uint64) (usersvc.User, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return usersvc.User{}, usersvc.ErrUserNotFound
	}
	return u, nil
}

func (r *userRepository) FindByUsername(username string) (usersvc.User, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return usersvc.User{}, usersvc.ErrUserNotFound
	}
	return r.byID[id], nil
}

func (r *userRepository) FindByEmail(email string) (usersvc.User, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return usersvc.User{}, usersvc.ErrUserNotFound
	}
	return r.byID[id], nil
}

func (r *userRepository) SetActive(id uint64, active bool) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return usersvc.ErrUserNotFound
	}
	u.IsActive = active
	r.byID[id] = u

	return nil
}

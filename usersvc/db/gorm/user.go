package gorm

import (
	"errors"
	"time"

	"github.com/ichigozero/todokit/usersvc"
	libgorm "gorm.io/gorm"
)

type user struct {
	ID             uint64 `gorm:"primaryKey"`
	Username       string `gorm:"uniqueIndex;not null"`
	Email          string `gorm:"uniqueIndex;not null"`
	FullName       *string
	IsActive       bool
	CreatedAt      time.Time
	HashedPassword string `gorm:"not null"`
}

func (user) TableName() string { return "users" }

func (u user) toUser() usersvc.User {
	return usersvc.User{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		FullName:       u.FullName,
		IsActive:       u.IsActive,
		CreatedAt:      u.CreatedAt,
		HashedPassword: u.HashedPassword,
	}
}

// Migrate creates or updates the users table.
func Migrate(db *libgorm.DB) error {
	return db.AutoMigrate(&user{})
}

type userRepository struct {
	db *libgorm.DB
}

func NewUserRepository(db *libgorm.DB) usersvc.UserRepository {
	return &userRepository{db}
}

func (r *userRepository) Create(u usersvc.User) (usersvc.User, error) {
	rec := user{
		Username:       u.Username,
		Email:          u.Email,
		FullName:       u.FullName,
		IsActive:       u.IsActive,
		CreatedAt:      u.CreatedAt,
		HashedPassword: u.HashedPassword,
	}

	err := r.db.Transaction(func(tx *libgorm.DB) error {
		if err := conflict(tx, u.Username, u.Email); err != nil {
			return err
		}
		return tx.Create(&rec).Error
	})
	if errors.Is(err, usersvc.ErrDuplicateUsername) || errors.Is(err, usersvc.ErrDuplicateEmail) {
		return usersvc.User{}, err
	}
	if err != nil {
		// A concurrent insert may have won the unique index race.
		if cerr := conflict(r.db, u.Username, u.Email); cerr != nil {
			return usersvc.User{}, cerr
		}
		return usersvc.User{}, err
	}

	return rec.toUser(), nil
}

func conflict(tx *libgorm.DB, username, email string) error {
	var n int64
	if err := tx.Model(&user{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return usersvc.ErrDuplicateUsername
	}

	if err := tx.Model(&user{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return usersvc.ErrDuplicateEmail
	}

	return nil
}

func (r *userRepository) FindByID(id uint64) (usersvc.User, error) {
	return r.first("id = ?", id)
}

func (r *userRepository) FindByUsername(username string) (usersvc.User, error) {
	return r.first("username = ?", username)
}

func (r *userRepository) FindByEmail(email string) (usersvc.User, error) {
	return r.first("email = ?", email)
}

func (r *userRepository) first(query string, arg interface{}) (usersvc.User, error) {
	var rec user
	err := r.db.Where(query, arg).First(&rec).Error
	if errors.Is(err, libgorm.ErrRecordNotFound) {
		return usersvc.User{}, usersvc.ErrUserNotFound
	}
	if err != nil {
		return usersvc.User{}, err
	}
	return rec.toUser(), nil
}

func (r *userRepository) SetActive(id uint64, active bool) error {
	result := r.db.Model(&user{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return usersvc.ErrUserNotFound
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/Tyrowin/roomchat/internal/auth"
	"gorm.io/gorm"
)

type userRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"uniqueIndex;size:50;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (userRow) TableName() string {
	return "users"
}

// Users is the GORM-backed auth.CredentialStore.
type Users struct {
	db *gorm.DB
}

// NewUsers creates a credential store on db.
func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// FindByUsername finds a user by name.
func (s *Users) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	var row userRow
	result := s.db.WithContext(ctx).First(&row, "username = ?", username)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, result.Error
	}
	return &auth.User{
		ID:           row.ID,
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
	}, nil
}

// Create inserts a new user.
func (s *Users) Create(ctx context.Context, user *auth.User) error {
	row := userRow{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	result := s.db.WithContext(ctx).Create(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return auth.ErrUserExists
		}
		return result.Error
	}
	return nil
}

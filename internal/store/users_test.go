package store

import (
	"context"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers_CreateAndFind(t *testing.T) {
	repo := NewUsers(setupTestDB(t))
	ctx := context.Background()

	user := &auth.User{ID: uuid.NewString(), Username: "alice", PasswordHash: "hash", CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, user))

	found, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, "hash", found.PasswordHash)
}

func TestUsers_NotFound(t *testing.T) {
	repo := NewUsers(setupTestDB(t))

	_, err := repo.FindByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUsers_DuplicateUsername(t *testing.T) {
	repo := NewUsers(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &auth.User{ID: uuid.NewString(), Username: "alice", PasswordHash: "a"}))
	err := repo.Create(ctx, &auth.User{ID: uuid.NewString(), Username: "alice", PasswordHash: "b"})
	assert.ErrorIs(t, err, auth.ErrUserExists)
}

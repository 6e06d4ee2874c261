package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresUserStore(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	users, err := NewPostgresUserStore(ctx, databaseURL)
	require.NoError(t, err)
	defer users.Close()

	username := fmt.Sprintf("pg-user-%d", time.Now().UnixNano())
	rec, err := users.CreateUser(ctx, username, "hash")
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)

	_, err = users.CreateUser(ctx, username, "hash")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	got, err := users.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, username, got.Username)

	got, err = users.GetByUsername(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = users.GetByID(ctx, -1)
	assert.ErrorIs(t, err, ErrNotFound)
}

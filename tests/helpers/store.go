// Package helpers provides shared test fixtures.
package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/example/chatbot/domain"
	"github.com/example/chatbot/store"
)

// NewTestSQLiteStore returns an in-memory store that closes with the test.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// SeedUser creates a user with the given API key.
func SeedUser(t *testing.T, s store.Store, userID, apiKey string) *domain.User {
	t.Helper()

	user := &domain.User{
		UserID:    userID,
		APIKey:    apiKey,
		Name:      userID,
		CreatedAt: time.Now(),
	}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

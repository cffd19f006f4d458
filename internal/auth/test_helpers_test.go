package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu            sync.Mutex
	usersByEmail  map[string]UserRow
	usersByID     map[string]UserRow
	tokensByHash  map[string]TokenRow
	tokensByID    map[string]TokenRow
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		usersByEmail: make(map[string]UserRow),
		usersByID:    make(map[string]UserRow),
		tokensByHash: make(map[string]TokenRow),
		tokensByID:   make(map[string]TokenRow),
	}
}

func (f *fakeStore) addUser(email, passwordHash string, roles []string) UserRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := UserRow{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		Roles:        roles,
		CreatedAt:    time.Now(),
	}
	f.usersByEmail[user.Email] = user
	f.usersByID[user.ID] = user
	return user
}

func (f *fakeStore) CreateUser(_ context.Context, email, passwordHash string, roles []string) (UserRow, error) {
	f.mu.Lock()
	if _, ok := f.usersByEmail[strings.ToLower(email)]; ok {
		f.mu.Unlock()
		return UserRow{}, ErrEmailTaken
	}
	f.mu.Unlock()
	return f.addUser(email, passwordHash, roles), nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (UserRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.usersByEmail[strings.ToLower(email)]
	if !ok {
		return UserRow{}, fmt.Errorf("user not found")
	}
	return user, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (UserRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.usersByID[id]
	if !ok {
		return UserRow{}, fmt.Errorf("user not found")
	}
	return user, nil
}

func (f *fakeStore) InsertRefreshToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) (TokenRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := TokenRow{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}
	f.tokensByHash[tokenHash] = token
	f.tokensByID[token.ID] = token
	return token, nil
}

func (f *fakeStore) GetRefreshToken(_ context.Context, tokenHash string) (TokenRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokensByHash[tokenHash]
	if !ok {
		return TokenRow{}, fmt.Errorf("token not found")
	}
	return token, nil
}

func (f *fakeStore) RotateRefreshToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokensByID[id]
	if !ok || token.RevokedAt != nil {
		return fmt.Errorf("token not found")
	}
	delete(f.tokensByHash, token.TokenHash)
	token.TokenHash = tokenHash
	token.ExpiresAt = expiresAt
	f.tokensByID[id] = token
	f.tokensByHash[tokenHash] = token
	return nil
}

func (f *fakeStore) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokensByHash[tokenHash]
	if !ok || token.RevokedAt != nil {
		return nil
	}
	now := time.Now()
	token.RevokedAt = &now
	f.tokensByHash[tokenHash] = token
	f.tokensByID[token.ID] = token
	return nil
}

func (f *fakeStore) RevokeUserTokens(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for hash, token := range f.tokensByHash {
		if token.UserID == userID && token.RevokedAt == nil {
			token.RevokedAt = &now
			f.tokensByHash[hash] = token
			f.tokensByID[token.ID] = token
		}
	}
	return nil
}

func (f *fakeStore) liveToken(hash string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokensByHash[hash]
	return ok && token.RevokedAt == nil
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

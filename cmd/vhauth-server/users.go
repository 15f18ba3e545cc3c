package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/virtualhospital/vhauth/password"
)

var (
	errUserExists         = errors.New("user with this email already exists")
	errInvalidCredentials = errors.New("invalid credentials")
	errIdentityConflict   = errors.New("account is linked to another social identity")
)

type user struct {
	ID           string
	Username     string
	Email        string
	Role         string
	Provider     string
	PasswordHash string
	SocialUID    string
	CreatedAt    time.Time
}

// userDirectory is the in-memory account table behind register and login.
// Real deployments keep accounts in the application database.
type userDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]*user
	hasher  *password.Hasher

	// dummyHash is compared against when the email is unknown so both
	// failure paths cost one hash.
	dummyHash string
}

func newUserDirectory(hasher *password.Hasher) *userDirectory {
	dummy, _ := hasher.Hash(uuid.NewString())
	return &userDirectory{
		byEmail:   make(map[string]*user),
		hasher:    hasher,
		dummyHash: dummy,
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (d *userDirectory) Register(_ context.Context, username, email, plain string) (*user, error) {
	key := emailKey(email)
	d.mu.RLock()
	_, taken := d.byEmail[key]
	d.mu.RUnlock()
	if taken {
		return nil, errUserExists
	}

	hash, err := d.hasher.Hash(plain)
	if err != nil {
		return nil, err
	}
	u := &user{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Role:         "patient",
		Provider:     "local",
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.byEmail[key]; taken {
		return nil, errUserExists
	}
	d.byEmail[key] = u
	return u, nil
}

// Authenticate checks email and password. Unknown emails and wrong
// passwords both return errInvalidCredentials.
func (d *userDirectory) Authenticate(_ context.Context, email, plain string) (*user, error) {
	key := emailKey(email)
	d.mu.RLock()
	u, ok := d.byEmail[key]
	var stored string
	if ok {
		stored = u.PasswordHash
	}
	d.mu.RUnlock()

	if !ok {
		_ = d.hasher.Compare(plain, d.dummyHash)
		return nil, errInvalidCredentials
	}
	if err := d.hasher.Compare(plain, stored); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	if rehash, err := d.hasher.NeedsRehash(stored); err == nil && rehash {
		if fresh, err := d.hasher.Hash(plain); err == nil {
			d.mu.Lock()
			u.PasswordHash = fresh
			d.mu.Unlock()
		}
	}
	return u, nil
}

// Import adds an account with an existing hash, e.g. a bcrypt hash carried
// over from the previous backend.
func (d *userDirectory) Import(u *user) error {
	key := emailKey(u.Email)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.byEmail[key]; taken {
		return errUserExists
	}
	d.byEmail[key] = u
	return nil
}

// UpsertSocial finds or creates the account for a provider-verified identity.
// An existing account is linked to uid on first use and switched to the
// social provider; an account already linked to a different uid is refused.
func (d *userDirectory) UpsertSocial(_ context.Context, uid, email, displayName string) (*user, bool, error) {
	key := emailKey(email)
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.byEmail[key]; ok {
		if existing.SocialUID != "" && existing.SocialUID != uid {
			return nil, false, errIdentityConflict
		}
		existing.SocialUID = uid
		existing.Provider = socialProvider
		return existing, false, nil
	}

	username := displayName
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	u := &user{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		Role:      "patient",
		Provider:  socialProvider,
		SocialUID: uid,
		CreatedAt: time.Now().UTC(),
	}
	d.byEmail[key] = u
	return u, true, nil
}

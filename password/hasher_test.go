package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func fastConfig() Config {
	return Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func newHasher(t *testing.T, cfg Config) *Hasher {
	t.Helper()
	h, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

func TestHashAndCompare(t *testing.T) {
	h := newHasher(t, fastConfig())

	encoded, err := h.Hash("Str0ng!Passw0rd")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}
	if strings.Contains(encoded, "=$") || strings.HasSuffix(encoded, "=") {
		t.Fatalf("PHC fields must be unpadded: %s", encoded)
	}

	if err := h.Compare("Str0ng!Passw0rd", encoded); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if err := h.Compare("Str0ng!Passw0rD", encoded); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}

	again, _ := h.Hash("Str0ng!Passw0rd")
	if again == encoded {
		t.Fatal("expected a fresh salt per hash")
	}
}

func TestHashLengthBounds(t *testing.T) {
	h := newHasher(t, fastConfig())
	for _, pw := range []string{"", "Sh0rt!", strings.Repeat("a", MaxLength+1)} {
		if _, err := h.Hash(pw); !errors.Is(err, ErrLength) {
			t.Fatalf("len %d: expected ErrLength, got %v", len(pw), err)
		}
	}
}

func TestCompareLegacyBcrypt(t *testing.T) {
	h := newHasher(t, fastConfig())

	legacy, err := bcrypt.GenerateFromPassword([]byte("Legacy@123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if err := h.Compare("Legacy@123", string(legacy)); err != nil {
		t.Fatalf("expected bcrypt hash to verify: %v", err)
	}
	if err := h.Compare("legacy@123", string(legacy)); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}

	rehash, err := h.NeedsRehash(string(legacy))
	if err != nil || !rehash {
		t.Fatalf("expected bcrypt hashes to need a rehash, got %v %v", rehash, err)
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := newHasher(t, fastConfig())
	encoded, err := weak.Hash("Str0ng!Passw0rd")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if rehash, err := weak.NeedsRehash(encoded); err != nil || rehash {
		t.Fatalf("same parameters must not need a rehash, got %v %v", rehash, err)
	}

	stronger := fastConfig()
	stronger.Time = 2
	if rehash, err := newHasher(t, stronger).NeedsRehash(encoded); err != nil || !rehash {
		t.Fatalf("higher time cost must need a rehash, got %v %v", rehash, err)
	}

	// The stronger hasher still verifies old hashes with their own params.
	if err := newHasher(t, stronger).Compare("Str0ng!Passw0rd", encoded); err != nil {
		t.Fatalf("Compare with stronger hasher: %v", err)
	}
}

func TestMalformedHashes(t *testing.T) {
	h := newHasher(t, fastConfig())
	good, _ := h.Hash("Str0ng!Passw0rd")
	parts := strings.Split(good, "$")

	cases := map[string]string{
		"empty":         "",
		"plain":         "not-a-hash",
		"algorithm":     strings.Replace(good, "argon2id", "argon2i", 1),
		"version":       strings.Replace(good, "v=19", "v=16", 1),
		"weak memory":   strings.Replace(good, "m=8192", "m=1024", 1),
		"extra param":   strings.Replace(good, "p=1", "p=1,x=2", 1),
		"missing param": strings.Replace(good, ",p=1", "", 1),
		"short salt":    strings.Join([]string{"", parts[1], parts[2], parts[3], "c2FsdA", parts[5]}, "$"),
		"bad key":       strings.Join([]string{"", parts[1], parts[2], parts[3], parts[4], "!!!"}, "$"),
	}
	for name, encoded := range cases {
		if err := h.Compare("Str0ng!Passw0rd", encoded); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("%s: expected ErrMalformedHash, got %v", name, err)
		}
		if _, err := h.NeedsRehash(encoded); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("%s: NeedsRehash expected ErrMalformedHash, got %v", name, err)
		}
	}
}

func TestNewHasherRejectsWeakConfig(t *testing.T) {
	mutations := []func(*Config){
		func(c *Config) { c.Memory = 1024 },
		func(c *Config) { c.Time = 0 },
		func(c *Config) { c.Parallelism = 0 },
		func(c *Config) { c.SaltLength = 8 },
		func(c *Config) { c.KeyLength = 8 },
	}
	for i, mutate := range mutations {
		cfg := DefaultConfig()
		mutate(&cfg)
		if _, err := NewHasher(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
	if _, err := NewHasher(DefaultConfig()); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
}

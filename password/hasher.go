package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// MinLength matches the strong-password field rule.
	MinLength = 8
	// MaxLength bounds the work an attacker can force per attempt.
	MaxLength = 1024

	argon2ID = "argon2id"
)

var (
	// ErrMismatch is returned by Compare when the password is wrong.
	ErrMismatch = errors.New("password: mismatch")
	// ErrMalformedHash is returned for stored values that are not a
	// supported hash encoding.
	ErrMalformedHash = errors.New("password: malformed hash")
	// ErrLength is returned by Hash for passwords outside
	// [MinLength, MaxLength] bytes.
	ErrLength = errors.New("password: length out of range")
)

// Config sets the Argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig follows the OWASP Argon2id baseline.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password: memory must be >= %d KiB", minMemoryKB)
	case c.Time < minTimeCost:
		return errors.New("password: time must be >= 1")
	case c.Parallelism < minParallelism:
		return errors.New("password: parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password: salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password: key length must be >= %d", minKeyLength)
	}
	return nil
}

// Hasher hashes and compares passwords. It is safe for concurrent use.
type Hasher struct {
	cfg  Config
	rand io.Reader
}

func NewHasher(cfg Config) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Hasher{cfg: cfg, rand: rand.Reader}, nil
}

// Hash returns the PHC encoding of a fresh Argon2id hash of password. The
// bytes are used as given, without Unicode normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < MinLength || len(password) > MaxLength {
		return "", ErrLength
	}

	salt := make([]byte, h.cfg.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.cfg.Time, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)
	return phc{
		memory:      h.cfg.Memory,
		time:        h.cfg.Time,
		parallelism: h.cfg.Parallelism,
		salt:        salt,
		key:         key,
	}.String(), nil
}

// Compare returns nil when password matches encoded, ErrMismatch when it
// does not, and ErrMalformedHash when encoded cannot be read.
func (h *Hasher) Compare(password, encoded string) error {
	if isBcrypt(encoded) {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		switch {
		case err == nil:
			return nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return ErrMismatch
		default:
			return fmt.Errorf("%w: %w", ErrMalformedHash, err)
		}
	}

	p, err := parsePHC(encoded)
	if err != nil {
		return err
	}
	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	if subtle.ConstantTimeCompare(key, p.key) != 1 {
		return ErrMismatch
	}
	return nil
}

// NeedsRehash reports whether encoded should be replaced by a fresh Hash
// after a successful Compare.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return true, nil
	}
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return h.cfg.Memory > p.memory ||
		h.cfg.Time > p.time ||
		h.cfg.Parallelism > p.parallelism ||
		h.cfg.KeyLength != uint32(len(p.key)), nil
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2ID, argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, reason)
}

func parsePHC(encoded string) (phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return phc{}, malformed("expected 5 fields")
	}
	if parts[1] != argon2ID {
		return phc{}, malformed("unsupported algorithm " + strconv.Quote(parts[1]))
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return phc{}, malformed("missing version")
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return phc{}, malformed("unsupported version")
	}

	var p phc
	if err := p.parseParams(parts[3]); err != nil {
		return phc{}, err
	}

	var err error
	if p.salt, err = decodeB64(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return phc{}, malformed("bad salt")
	}
	if p.key, err = decodeB64(parts[5]); err != nil || len(p.key) == 0 {
		return phc{}, malformed("bad key")
	}
	return p, nil
}

func (p *phc) parseParams(s string) error {
	var seen int
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return malformed("bad parameter " + strconv.Quote(pair))
		}
		switch name {
		case "m":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil || uint32(n) < minMemoryKB {
				return malformed("bad memory")
			}
			p.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil || uint32(n) < minTimeCost {
				return malformed("bad time")
			}
			p.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(value, 10, 8)
			if err != nil || uint8(n) < minParallelism {
				return malformed("bad parallelism")
			}
			p.parallelism = uint8(n)
		default:
			return malformed("unknown parameter " + strconv.Quote(name))
		}
		seen++
	}
	if seen != 3 || p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return malformed("missing parameters")
	}
	return nil
}

// decodeB64 accepts both padded and unpadded standard base64; PHC strings
// are unpadded but older encoders padded them.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

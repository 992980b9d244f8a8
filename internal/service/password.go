package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var ErrUnsupportedHash = errors.New("unsupported password hash")

// PasswordScheme is one hashing algorithm a stored password hash may use.
type PasswordScheme interface {
	Name() string
	// Identifies reports whether encoded was produced by this scheme.
	Identifies(encoded string) bool
	Hash(password string) (string, error)
	Verify(encoded, password string) (bool, error)
}

// PasswordSchemes is the ordered list of accepted schemes. New hashes use
// the first one.
type PasswordSchemes struct {
	schemes []PasswordScheme
}

func NewPasswordSchemes(names []string) (*PasswordSchemes, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: PASSWORD_SCHEMES is empty", ErrMisconfigured)
	}

	seen := make(map[string]bool, len(names))
	var schemes []PasswordScheme
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "bcrypt":
			schemes = append(schemes, bcryptScheme{cost: bcrypt.DefaultCost})
		case "argon2id", "argon2":
			schemes = append(schemes, argon2idScheme{params: defaultArgon2Params})
		default:
			return nil, fmt.Errorf("%w: unknown password scheme %q", ErrMisconfigured, name)
		}
	}
	return &PasswordSchemes{schemes: schemes}, nil
}

func (p *PasswordSchemes) Default() PasswordScheme {
	return p.schemes[0]
}

func (p *PasswordSchemes) Hash(password string) (string, error) {
	return p.Default().Hash(password)
}

// Verify picks the scheme from the hash prefix. Hashes of schemes that are
// not configured fail with ErrUnsupportedHash.
func (p *PasswordSchemes) Verify(encoded, password string) (bool, error) {
	for _, scheme := range p.schemes {
		if scheme.Identifies(encoded) {
			return scheme.Verify(encoded, password)
		}
	}
	return false, ErrUnsupportedHash
}

type bcryptScheme struct {
	cost int
}

func (bcryptScheme) Name() string { return "bcrypt" }

func (bcryptScheme) Identifies(encoded string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(encoded, prefix) {
			return true
		}
	}
	return false
}

func (s bcryptScheme) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (bcryptScheme) Verify(encoded, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrUnsupportedHash, err)
	}
}

type argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var defaultArgon2Params = argon2Params{
	MemoryKiB:   64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// argon2idScheme encodes hashes as
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
type argon2idScheme struct {
	params argon2Params
}

func (argon2idScheme) Name() string { return "argon2id" }

func (argon2idScheme) Identifies(encoded string) bool {
	return strings.HasPrefix(encoded, "$argon2id$")
}

func (s argon2idScheme) Hash(password string) (string, error) {
	salt := make([]byte, s.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, s.params.Iterations, s.params.MemoryKiB, s.params.Parallelism, s.params.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		s.params.MemoryKiB,
		s.params.Iterations,
		s.params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

func (s argon2idScheme) Verify(encoded, password string) (bool, error) {
	params, salt, expected, err := decodeArgon2id(encoded)
	if err != nil {
		return false, err
	}
	// Refuse hashes whose cost is far above ours.
	if params.MemoryKiB > s.params.MemoryKiB*2 || params.Iterations > s.params.Iterations*2 || params.Parallelism > s.params.Parallelism*2 {
		return false, ErrUnsupportedHash
	}

	key := argon2.IDKey([]byte(password), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func decodeArgon2id(encoded string) (argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return argon2Params{}, nil, nil, ErrUnsupportedHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return argon2Params{}, nil, nil, ErrUnsupportedHash
	}

	var mem, iter, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return argon2Params{}, nil, nil, ErrUnsupportedHash
	}
	if mem == 0 || iter == 0 || par == 0 || par > 255 {
		return argon2Params{}, nil, nil, ErrUnsupportedHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return argon2Params{}, nil, nil, ErrUnsupportedHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > 128 {
		return argon2Params{}, nil, nil, ErrUnsupportedHash
	}

	return argon2Params{
		MemoryKiB:   mem,
		Iterations:  iter,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}, salt, key, nil
}

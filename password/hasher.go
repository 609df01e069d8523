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
)

const (
	phcAlgorithm = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltBytes   uint32 = 16
	minKeyBytes    uint32 = 16
	minPassBytes          = 10
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 10 bytes")
	ErrMalformedHash    = errors.New("malformed password hash")
)

// Params defines a public type used by authgate APIs.
//
// Params instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Params struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
	SaltBytes   uint32
	KeyBytes    uint32
}

// DefaultParams returns the Argon2id cost settings used when no override
// is supplied in the engine configuration.
func DefaultParams() Params {
	return Params{
		MemoryKB:    64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltBytes:   16,
		KeyBytes:    32,
	}
}

// Hasher defines a public type used by authgate APIs.
//
// Hasher instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Hasher struct {
	params Params
}

// NewHasher describes the newhasher operation and its observable behavior.
//
// NewHasher may return an error when input validation, dependency calls, or security checks fail.
// NewHasher does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewHasher(p Params) (*Hasher, error) {
	switch {
	case p.MemoryKB < minMemoryKB:
		return nil, errors.New("password memory must be >= 8192 KB")
	case p.Time < minTimeCost:
		return nil, errors.New("password time must be >= 1")
	case p.Parallelism < minParallelism:
		return nil, errors.New("password parallelism must be >= 1")
	case p.SaltBytes < minSaltBytes:
		return nil, errors.New("password salt length must be >= 16")
	case p.KeyBytes < minKeyBytes:
		return nil, errors.New("password key length must be >= 16")
	}

	return &Hasher{params: p}, nil
}

// Hash describes the hash operation and its observable behavior.
//
// Hash may return an error when input validation, dependency calls, or security checks fail.
// Hash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Hasher) Hash(password string) (string, error) {
	// Raw string bytes exactly as provided, no Unicode normalization.
	if len(password) < minPassBytes {
		return "", ErrPasswordTooShort
	}

	salt := make([]byte, h.params.SaltBytes)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Time,
		h.params.MemoryKB,
		h.params.Parallelism,
		h.params.KeyBytes,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm,
		argon2.Version,
		h.params.MemoryKB,
		h.params.Time,
		h.params.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify describes the verify operation and its observable behavior.
//
// Verify may return an error when input validation, dependency calls, or security checks fail.
// Verify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	stored, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		stored.salt,
		stored.time,
		stored.memoryKB,
		stored.parallelism,
		uint32(len(stored.key)),
	)

	return subtle.ConstantTimeCompare(computed, stored.key) == 1, nil
}

// NeedsRehash reports whether the stored hash was produced with weaker
// parameters than the hasher currently enforces.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	stored, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	upgrade := h.params.MemoryKB > stored.memoryKB ||
		h.params.Time > stored.time ||
		h.params.Parallelism > stored.parallelism ||
		h.params.KeyBytes != uint32(len(stored.key))

	return upgrade, nil
}

type storedHash struct {
	memoryKB    uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func decodePHC(encoded string) (*storedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != phcAlgorithm {
		return nil, ErrMalformedHash
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, ErrMalformedHash
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return nil, ErrMalformedHash
	}

	var s storedHash
	if err := decodeCosts(parts[3], &s); err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltBytes) {
		return nil, ErrMalformedHash
	}

	key, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, ErrMalformedHash
	}

	s.salt = salt
	s.key = key
	return &s, nil
}

func decodeCosts(part string, s *storedHash) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return ErrMalformedHash
	}

	var seenM, seenT, seenP bool
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return ErrMalformedHash
		}

		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minMemoryKB) {
				return ErrMalformedHash
			}
			s.memoryKB = uint32(n)
			seenM = true
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minTimeCost) {
				return ErrMalformedHash
			}
			s.time = uint32(n)
			seenT = true
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || n < uint64(minParallelism) {
				return ErrMalformedHash
			}
			s.parallelism = uint8(n)
			seenP = true
		default:
			return ErrMalformedHash
		}
	}

	if !seenM || !seenT || !seenP {
		return ErrMalformedHash
	}
	return nil
}

// Package passwd hashes and verifies user passwords.
//
// Passwords are reduced with SHA-256 before bcrypt so that inputs longer
// than bcrypt's 72-byte limit are accepted and fully significant.
package passwd

import (
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor embedded in new hashes.
const DefaultCost = bcrypt.DefaultCost

type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

type hasher struct {
	cost int
}

func NewHasher() Hasher {
	return NewHasherWithCost(DefaultCost)
}

// NewHasherWithCost is mostly useful in tests, where bcrypt.MinCost keeps
// things fast.
func NewHasherWithCost(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return hasher{cost: cost}
}

func (h hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword(prehash(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches hash. A malformed hash never
// matches.
func (h hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), prehash(password)) == nil
}

func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

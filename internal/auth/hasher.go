// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// MaxPasswordBytes bounds hashing input. Argon2 is deliberately
// expensive, so unbounded input is a trivial resource-exhaustion vector.
const MaxPasswordBytes = 1024

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted argon2id hash of the password. Wraps
	// ErrInputTooLarge above MaxPasswordBytes.
	Hash(password string) (string, error)

	// Verify checks the password against an encoded hash in constant
	// time. It returns false - never an error or panic - on mismatch or
	// on a malformed hash, since the encoded hash may accompany
	// attacker-controlled input.
	Verify(password, encodedHash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password in PHC string format.
// The salt is random per call, so hashing the same password twice
// yields different output.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordBytes {
		return "", oops.Code("AUTH_INPUT_TOO_LARGE").
			With("max_bytes", MaxPasswordBytes).
			Wrap(ErrInputTooLarge)
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encoded, nil
}

// Verify checks if the password matches the encoded hash. Any parse
// failure counts as a mismatch.
func (h *Argon2idHasher) Verify(password, encodedHash string) bool {
	params, salt, expected, ok := parsePHC(encodedHash)
	if !ok {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(expected)))

	return subtle.ConstantTimeCompare(computed, expected) == 1
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

// parsePHC decodes a $argon2id$ PHC string. It reports ok=false rather
// than an error; Verify treats every malformed hash as a mismatch.
func parsePHC(encodedHash string) (argon2Params, []byte, []byte, bool) {
	var params argon2Params

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return params, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, false
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return params, nil, nil, false
	}
	// threads must fit in uint8; a larger value would be silently truncated.
	if memory == 0 || time == 0 || threads == 0 || threads > 255 {
		return params, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, false
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 || len(expected) > 1<<10 {
		return params, nil, nil, false
	}

	params.memory = memory
	params.time = time
	params.threads = uint8(threads)
	return params, salt, expected, true
}

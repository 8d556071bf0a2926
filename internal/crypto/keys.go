package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hengadev/errsx"
	"golang.org/x/crypto/argon2"
)

// KeyParams are the Argon2id settings used to derive a key from a passphrase.
type KeyParams struct {
	Memory      uint32 `yaml:"memory"`
	Iterations  uint32 `yaml:"iterations"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
}

// DefaultKeyParams follows the RFC 9106 second recommended option.
var DefaultKeyParams = KeyParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 4,
	SaltLength:  16,
}

func (p KeyParams) Validate() error {
	var errs errsx.Map
	if p.Memory < 8*uint32(p.Parallelism) || p.Memory == 0 {
		errs.Set("memory", fmt.Sprintf("memory must be at least 8*parallelism KiB, got %d", p.Memory))
	}
	if p.Iterations == 0 {
		errs.Set("iterations", "iterations must be positive")
	}
	if p.Parallelism == 0 {
		errs.Set("parallelism", "parallelism must be positive")
	}
	if p.SaltLength < 8 {
		errs.Set("saltLength", fmt.Sprintf("salt length must be at least 8 bytes, got %d", p.SaltLength))
	}
	if !errs.IsEmpty() {
		return errs.AsError()
	}
	return nil
}

// DeriveKey stretches passphrase and salt into a KeySize key.
func DeriveKey(passphrase, salt []byte, p KeyParams) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if uint32(len(salt)) < p.SaltLength {
		return nil, fmt.Errorf("salt must be at least %d bytes, got %d", p.SaltLength, len(salt))
	}
	return argon2.IDKey(passphrase, salt, p.Iterations, p.Memory, p.Parallelism, KeySize), nil
}

// GenerateKey returns a fresh random KeySize key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// GenerateSalt returns a random salt of p.SaltLength bytes.
func GenerateSalt(p KeyParams) ([]byte, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// FormatDerivation encodes the parameters and salt in the usual
// "$argon2id$v=19$m=...,t=...,p=...$salt" form, so they can be stored next
// to a dump and the key derived again later.
func FormatDerivation(p KeyParams, salt []byte) string {
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		argon2.Version,
		p.Memory,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
	)
}

// ParseDerivation reverses FormatDerivation.
func ParseDerivation(s string) (KeyParams, []byte, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "argon2id" {
		return KeyParams{}, nil, fmt.Errorf("invalid derivation format")
	}

	versionPart := parts[2]
	if !strings.HasPrefix(versionPart, "v=") {
		return KeyParams{}, nil, fmt.Errorf("invalid version format")
	}
	version, err := strconv.Atoi(versionPart[2:])
	if err != nil {
		return KeyParams{}, nil, fmt.Errorf("invalid version number: %w", err)
	}
	if version != argon2.Version {
		return KeyParams{}, nil, fmt.Errorf("unsupported Argon2 version %d", version)
	}

	var p KeyParams
	for _, pair := range strings.Split(parts[3], ",") {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return KeyParams{}, nil, fmt.Errorf("invalid parameter format %q", pair)
		}
		value, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return KeyParams{}, nil, fmt.Errorf("invalid parameter value: %w", err)
		}
		switch key {
		case "m":
			p.Memory = uint32(value)
		case "t":
			p.Iterations = uint32(value)
		case "p":
			if value > 255 {
				return KeyParams{}, nil, fmt.Errorf("parallelism %d out of range", value)
			}
			p.Parallelism = uint8(value)
		default:
			return KeyParams{}, nil, fmt.Errorf("unknown parameter: %s", key)
		}
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return KeyParams{}, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	p.SaltLength = uint32(len(salt))
	return p, salt, nil
}

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32

	// maxChunkSize defines the maximum allowed chunk size for stream decryption
	// to prevent memory exhaustion attacks
	maxChunkSize = 10 * 1024 * 1024

	streamChunkSize = 64 * 1024
)

var ErrInvalidKeySize = errors.New("invalid key size")

// AEAD seals and opens byte slices with AES-256-GCM. Sealed output is the
// random nonce followed by the ciphertext and tag.
type AEAD struct {
	gcm cipher.AEAD
}

// NewAEAD creates an AEAD from a 32-byte key.
func NewAEAD(key []byte) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeySize, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &AEAD{gcm: gcm}, nil
}

// Overhead is the number of bytes Seal adds to its input.
func (a *AEAD) Overhead() int {
	return a.gcm.NonceSize() + a.gcm.Overhead()
}

// Seal encrypts plaintext under a fresh random nonce.
func (a *AEAD) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, a.gcm.NonceSize(), a.gcm.NonceSize()+len(plaintext)+a.gcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return a.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts a slice produced by Seal.
func (a *AEAD) Open(sealed []byte) ([]byte, error) {
	nonceSize := a.gcm.NonceSize()
	if len(sealed) < nonceSize+a.gcm.Overhead() {
		return nil, fmt.Errorf("invalid ciphertext size %d", len(sealed))
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := a.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// SealStream encrypts everything read from r into w as a sequence of sealed
// chunks, each preceded by its little-endian uint32 length.
func (a *AEAD) SealStream(w io.Writer, r io.Reader) error {
	buffer := make([]byte, streamChunkSize)
	var header [4]byte
	for {
		n, err := io.ReadFull(r, buffer)
		if n > 0 {
			sealed, serr := a.Seal(buffer[:n])
			if serr != nil {
				return fmt.Errorf("failed to encrypt chunk: %w", serr)
			}
			binary.LittleEndian.PutUint32(header[:], uint32(len(sealed)))
			if _, werr := w.Write(header[:]); werr != nil {
				return fmt.Errorf("failed to write chunk length: %w", werr)
			}
			if _, werr := w.Write(sealed); werr != nil {
				return fmt.Errorf("failed to write to output stream: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read from input stream: %w", err)
		}
	}
}

// OpenStream reverses SealStream.
func (a *AEAD) OpenStream(w io.Writer, r io.Reader) error {
	var header [4]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read chunk length: %w", err)
		}

		length := binary.LittleEndian.Uint32(header[:])
		if length == 0 {
			return fmt.Errorf("invalid chunk size: 0")
		}
		if length > maxChunkSize {
			return fmt.Errorf("chunk size %d exceeds maximum allowed size %d", length, maxChunkSize)
		}

		sealed := make([]byte, length)
		if _, err := io.ReadFull(r, sealed); err != nil {
			return fmt.Errorf("failed to read encrypted chunk: %w", err)
		}
		plaintext, err := a.Open(sealed)
		if err != nil {
			return fmt.Errorf("failed to decrypt chunk: %w", err)
		}
		if _, err := w.Write(plaintext); err != nil {
			return fmt.Errorf("failed to write to output stream: %w", err)
		}
	}
}

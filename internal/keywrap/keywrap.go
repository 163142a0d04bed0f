// Package keywrap is the in-process key custody collaborator. It wraps a root
// key under a key-encryption key derived from the user's secret and salt, and
// answers the same commands as the native binary so either can sit behind a
// bridgecli.Client.
package keywrap

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/cognitechbridge/ctb-session/internal/bridgecli"
)

// Argon2id parameters for deriving the key-encryption key.
const (
	DefaultTime    = 2
	DefaultMemory  = 64 * 1024 // KiB
	DefaultThreads = 8
	keyLen         = chacha20poly1305.KeySize
)

// blobVersion prefixes every wrapped key and is authenticated as AAD.
const blobVersion byte = 0x01

// blobOverhead is version + XChaCha20 nonce + Poly1305 tag.
const blobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var (
	// ErrMalformed means the wrapped key is not a blob this package produced.
	ErrMalformed = errors.New("keywrap: malformed wrapped key")
	// ErrUnknownCommand is returned by Run for commands it does not serve.
	ErrUnknownCommand = errors.New("keywrap: unknown command")
)

var encoding = base64.RawURLEncoding

// Wrapper derives keys with Argon2id and seals with XChaCha20-Poly1305.
// The zero value is not usable; construct with New.
type Wrapper struct {
	time    uint32
	memory  uint32
	threads uint8
}

// New returns a Wrapper using the default Argon2id cost.
func New() *Wrapper {
	return &Wrapper{time: DefaultTime, memory: DefaultMemory, threads: DefaultThreads}
}

// NewWithCost returns a Wrapper with explicit Argon2id cost parameters.
// Wrapped keys only verify under the cost they were produced with.
func NewWithCost(time, memoryKiB uint32, threads uint8) *Wrapper {
	return &Wrapper{time: time, memory: memoryKiB, threads: threads}
}

// Wrap seals rootKey under a key derived from secret and salt.
// Layout before encoding: [version][24-byte nonce][ciphertext+tag].
func (w *Wrapper) Wrap(secret, salt, rootKey string) (string, error) {
	aead, err := chacha20poly1305.NewX(w.kek(secret, salt))
	if err != nil {
		return "", fmt.Errorf("keywrap: creating cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("keywrap: generating nonce: %w", err)
	}

	out := make([]byte, 1+len(nonce), blobOverhead+len(rootKey))
	out[0] = blobVersion
	copy(out[1:], nonce[:])

	out = aead.Seal(out, nonce[:], []byte(rootKey), []byte{blobVersion})

	return encoding.EncodeToString(out), nil
}

// Unwrap recovers the root key. Any failure to authenticate is reported as
// an error; callers that only need a yes/no use Verify.
func (w *Wrapper) Unwrap(secret, salt, wrapped string) (string, error) {
	blob, err := encoding.DecodeString(wrapped)
	if err != nil || len(blob) < blobOverhead || blob[0] != blobVersion {
		return "", ErrMalformed
	}

	aead, err := chacha20poly1305.NewX(w.kek(secret, salt))
	if err != nil {
		return "", fmt.Errorf("keywrap: creating cipher: %w", err)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]

	plain, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], blob[:1])
	if err != nil {
		return "", fmt.Errorf("keywrap: wrong secret or tampered key: %w", err)
	}

	return string(plain), nil
}

// Verify reports whether secret and salt unwrap wrapped.
func (w *Wrapper) Verify(secret, salt, wrapped string) bool {
	_, err := w.Unwrap(secret, salt, wrapped)
	return err == nil
}

// PublicKey derives the X25519 public key for a root key. The private scalar
// is SHA-256 of the root key.
func PublicKey(rootKey string) (string, error) {
	scalar := sha256.Sum256([]byte(rootKey))

	pub, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("keywrap: deriving public key: %w", err)
	}

	return encoding.EncodeToString(pub), nil
}

func (w *Wrapper) kek(secret, salt string) []byte {
	return argon2.IDKey([]byte(secret), []byte(salt), w.time, w.memory, w.threads, keyLen)
}

// Run serves the collaborator commands in-process, answering with the same
// envelopes the native binary produces.
func (w *Wrapper) Run(_ context.Context, command string, args []byte) ([]byte, error) {
	switch command {
	case bridgecli.CmdSetNewSecret:
		var a bridgecli.WrapArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return bridgecli.Reply("", err)
		}

		wrapped, err := w.Wrap(a.Secret, a.Salt, a.RootKey)

		return bridgecli.Reply(wrapped, err)
	case bridgecli.CmdCheckSetSecret:
		var a bridgecli.VerifyArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return bridgecli.Reply(false, err)
		}

		return bridgecli.Reply(w.Verify(a.Secret, a.Salt, a.EncryptedRootKey), nil)
	case bridgecli.CmdGetPublicKey:
		var a bridgecli.PublicKeyArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return bridgecli.Reply("", err)
		}

		pub, err := PublicKey(a.PrivateKey)

		return bridgecli.Reply(pub, err)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// Package vault implements the machine-bound token vault (C2): it seals
// the remote credential used by the weights fetcher with a key derived
// from stable host-identifying material, so the ciphertext is inert if
// the data directory is copied to a different machine.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"os/user"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/apperror"
)

const appTag = "ImageGrep:v1"

// Vault encrypts and decrypts the single remote credential at rest.
type Vault struct {
	key [32]byte
}

// New derives a Vault's key from the current OS username and hostname.
func New() (*Vault, error) {
	key, err := deriveKey()
	if err != nil {
		return nil, err
	}
	return &Vault{key: key}, nil
}

func deriveKey() ([32]byte, error) {
	var key [32]byte

	username := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	} else if env := os.Getenv("USER"); env != "" {
		username = env
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}

	material := fmt.Sprintf("%s:%s:%s", username, hostname, appTag)
	key = sha256.Sum256([]byte(material))
	return key, nil
}

// Encrypt seals plaintext, returning base64(nonce ‖ ciphertext ‖ tag).
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", apperror.New(apperror.KindInvalidInput, "cannot encrypt an empty credential")
	}

	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return "", apperror.Wrap(apperror.KindIOFailed, "failed to initialize cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperror.Wrap(apperror.KindIOFailed, "failed to initialize GCM", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", apperror.Wrap(apperror.KindIOFailed, "failed to generate nonce", err)
	}

	// GCM's Seal appends the authentication tag to the ciphertext.
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	out := append(nonce, sealed...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a value previously produced by Encrypt. It fails closed: any
// authentication failure (including a key derived on a different host) is
// reported as a decrypt-failed error, never a partial or corrupted plaintext.
func (v *Vault) Decrypt(sealed string) (string, error) {
	if sealed == "" {
		return "", apperror.New(apperror.KindInvalidInput, "cannot decrypt an empty value")
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", apperror.Wrap(apperror.KindInvalidInput, "malformed sealed credential", err)
	}

	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return "", apperror.Wrap(apperror.KindIOFailed, "failed to initialize cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperror.Wrap(apperror.KindIOFailed, "failed to initialize GCM", err)
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", apperror.New(apperror.KindDecryptFailed, "credential may have been saved on a different machine")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", apperror.Wrap(apperror.KindDecryptFailed, "credential may have been saved on a different machine", err)
	}
	return string(plaintext), nil
}

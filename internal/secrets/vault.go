package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/platform/logger"

	"golang.org/x/crypto/hkdf"
)

const keyDerivationInfo = "calendar-connector-token-vault"

// TokenVault encrypts OAuth credentials at rest with AES-256-GCM.  The GCM
// nonce is random per call, so the same plaintext produces different
// ciphertext, but Decrypt(Encrypt(x)) always returns x.
type TokenVault struct {
	key []byte
}

// NewTokenVault builds a vault from the configured master key.  Outside
// development mode a missing key is a startup failure.
func NewTokenVault(cfg *config.Config) (*TokenVault, error) {

	if cfg.TokenEncryptionKey == "" {
		if cfg.Environment != config.ENVIRONMENT_DEVELOPMENT {
			return nil, &domain.ConfigurationError{
				Setting: config.TOKEN_ENCRYPTION_KEY,
				Detail:  "token encryption key is required outside development",
			}
		}

		logger.Log.Warn("No token encryption key configured - using a development-only key")
		return newVaultFromMasterKey(make([]byte, 32))
	}

	masterKey, err := hex.DecodeString(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, &domain.ConfigurationError{
			Setting: config.TOKEN_ENCRYPTION_KEY,
			Detail:  "token encryption key must be hex encoded",
		}
	}

	if len(masterKey) != 32 {
		return nil, &domain.ConfigurationError{
			Setting: config.TOKEN_ENCRYPTION_KEY,
			Detail:  fmt.Sprintf("token encryption key must be 32 bytes, got %d", len(masterKey)),
		}
	}

	return newVaultFromMasterKey(masterKey)
}

// The cipher key is derived from the master key with HKDF so that the raw
// configured secret is never used directly as key material.
func newVaultFromMasterKey(masterKey []byte) (*TokenVault, error) {
	hkdfReader := hkdf.New(sha256.New, masterKey, nil, []byte(keyDerivationInfo))

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("unable to derive vault key: %w", err)
	}

	return &TokenVault{key: key}, nil
}

// Encrypt returns base64 ciphertext with the nonce prepended.
func (v *TokenVault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := v.newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("unable to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt.
func (v *TokenVault) Decrypt(ciphertextB64 string) (string, error) {
	if ciphertextB64 == "" {
		return "", nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("unable to decode ciphertext: %w", err)
	}

	gcm, err := v.newGCM()
	if err != nil {
		return "", err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return "", errors.New("ciphertext is shorter than the nonce")
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("unable to decrypt ciphertext: %w", err)
	}

	return string(plaintext), nil
}

func (v *TokenVault) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("unable to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("unable to create GCM: %w", err)
	}

	return gcm, nil
}

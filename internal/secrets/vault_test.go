package secrets

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/platform/logger"
)

func init() {
	logger.InitLogger()
}

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func buildTestVault(t *testing.T) *TokenVault {
	t.Helper()

	vault, err := NewTokenVault(&config.Config{
		Environment:        config.ENVIRONMENT_PRODUCTION,
		TokenEncryptionKey: testMasterKey,
	})
	if err != nil {
		t.Fatal("unexpected error while creating the vault", err)
	}

	return vault
}

func TestEncryptDecryptRoundTrip(t *testing.T) {

	testCases := []struct {
		testName  string
		plaintext string
	}{
		{"access token", "ya29.a0AfB_byCkN1xyz"},
		{"refresh token", "1//0gABCDEF-long-refresh-token"},
		{"unicode", "tøken-ünicode-日本語"},
		{"single byte", "x"},
	}

	vault := buildTestVault(t)

	for _, tc := range testCases {
		t.Run(tc.testName, func(t *testing.T) {
			ciphertext, err := vault.Encrypt(tc.plaintext)
			if err != nil {
				t.Fatal("unexpected error while encrypting", err)
			}

			if ciphertext == tc.plaintext {
				t.Fatal("ciphertext matches the plaintext")
			}

			plaintext, err := vault.Decrypt(ciphertext)
			if err != nil {
				t.Fatal("unexpected error while decrypting", err)
			}

			if plaintext != tc.plaintext {
				t.Fatalf("round trip mismatch: expected %q, got %q", tc.plaintext, plaintext)
			}
		})
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	vault := buildTestVault(t)

	first, err := vault.Encrypt("same plaintext")
	if err != nil {
		t.Fatal("unexpected error while encrypting", err)
	}

	second, err := vault.Encrypt("same plaintext")
	if err != nil {
		t.Fatal("unexpected error while encrypting", err)
	}

	if first == second {
		t.Fatal("expected randomized ciphertext for repeated plaintext")
	}
}

func TestEmptyStringPassesThrough(t *testing.T) {
	vault := buildTestVault(t)

	ciphertext, err := vault.Encrypt("")
	if err != nil {
		t.Fatal("unexpected error while encrypting", err)
	}
	if ciphertext != "" {
		t.Fatal("expected empty ciphertext for empty plaintext")
	}

	plaintext, err := vault.Decrypt("")
	if err != nil {
		t.Fatal("unexpected error while decrypting", err)
	}
	if plaintext != "" {
		t.Fatal("expected empty plaintext for empty ciphertext")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	vault := buildTestVault(t)

	ciphertext, err := vault.Encrypt("super secret token")
	if err != nil {
		t.Fatal("unexpected error while encrypting", err)
	}

	tampered := "A" + ciphertext[1:]
	if tampered == ciphertext {
		tampered = "B" + ciphertext[1:]
	}

	if _, err := vault.Decrypt(tampered); err == nil {
		t.Fatal("expected an error while decrypting tampered ciphertext")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	vault := buildTestVault(t)

	otherKey := hex.EncodeToString(make([]byte, 32))
	otherVault, err := NewTokenVault(&config.Config{
		Environment:        config.ENVIRONMENT_PRODUCTION,
		TokenEncryptionKey: otherKey,
	})
	if err != nil {
		t.Fatal("unexpected error while creating the vault", err)
	}

	ciphertext, err := vault.Encrypt("super secret token")
	if err != nil {
		t.Fatal("unexpected error while encrypting", err)
	}

	if _, err := otherVault.Decrypt(ciphertext); err == nil {
		t.Fatal("expected an error while decrypting with the wrong key")
	}
}

func TestMissingKeyOutsideDevelopment(t *testing.T) {
	_, err := NewTokenVault(&config.Config{Environment: config.ENVIRONMENT_PRODUCTION})

	var configErr *domain.ConfigurationError
	if err == nil {
		t.Fatal("expected a configuration error when the key is absent in production")
	}
	if !errors.As(err, &configErr) {
		t.Fatalf("expected a ConfigurationError, got %T", err)
	}
}

func TestMissingKeyAllowedInDevelopment(t *testing.T) {
	vault, err := NewTokenVault(&config.Config{Environment: config.ENVIRONMENT_DEVELOPMENT})
	if err != nil {
		t.Fatal("unexpected error while creating a development vault", err)
	}

	ciphertext, err := vault.Encrypt("dev token")
	if err != nil {
		t.Fatal("unexpected error while encrypting", err)
	}

	plaintext, err := vault.Decrypt(ciphertext)
	if err != nil {
		t.Fatal("unexpected error while decrypting", err)
	}

	if plaintext != "dev token" {
		t.Fatalf("round trip mismatch: got %q", plaintext)
	}
}

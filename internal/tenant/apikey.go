package tenant

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// GenerateAPIKey generates a new ingest API key for a tenant.
// Returns the plaintext key and its bcrypt hash.
//
// Format: <tenant_id>_<base64>. The tenant prefix lets the extraction
// chain recover the tenant from the key alone; only the hash is stored.
func GenerateAPIKey(tenantID string) (plaintext string, hash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("generating random bytes: %w", err)
	}

	encoded := base64.URLEncoding.EncodeToString(randomBytes)
	plaintext = fmt.Sprintf("%s_%s", tenantID, encoded)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hashing API key: %w", err)
	}

	return plaintext, string(hashBytes), nil
}

// VerifyAPIKey compares a plaintext API key against a bcrypt hash.
func VerifyAPIKey(plaintext, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	return err == nil
}

package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/crypto/blake2b"
)

const (
	secretPrefix = "dk_live_"
	secretBytes  = 32
)

// HashAPIKey is the lookup hash stored instead of the raw key.
func HashAPIKey(raw string) string {
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KeyIDFor derives the public key id from the row id.
func KeyIDFor(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}

// MintSecret returns a fresh raw key for keyID. The key id is embedded so a
// leaked key can be traced to its row without a lookup.
func MintSecret(keyID string) (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return secretPrefix + strings.TrimPrefix(keyID, "key_") + "_" + hex.EncodeToString(buf), nil
}

// NormalizeScopes lowercases, trims and de-duplicates scopes, keeping order.
func NormalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.ToLower(strings.TrimSpace(scope))
		if scope != "" && !contains(out, scope) {
			out = append(out, scope)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

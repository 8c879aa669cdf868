package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/burger-ledger/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

// Security authenticates API requests via HMAC-SHA256 hashed API keys and
// binds the key's account to the request context.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security with the given API key repository and HMAC
// pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, as stored in the
// api_keys table.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Middleware rejects requests without a valid key with 401.
func (s *Security) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			writeError(w, r, errUnauthenticated)
			return
		}

		ctx := r.Context()
		hexHash := HashKey(s.pepper, key)
		info, err := s.apikeys.FindByHash(ctx, hexHash)
		if err != nil {
			zctx.From(ctx).Debug("API key rejected", zap.Error(err))
			writeError(w, r, errUnauthenticated)
			return
		}

		// The stored hash must match what we computed.
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil {
			writeError(w, r, errUnauthenticated)
			return
		}
		computed, _ := hex.DecodeString(hexHash)
		if subtle.ConstantTimeCompare(computed, stored) != 1 || info.Account == "" {
			writeError(w, r, errUnauthenticated)
			return
		}

		ctx = auth.WithAccount(ctx, info.Account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

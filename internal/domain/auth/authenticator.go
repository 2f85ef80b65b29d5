package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/go-faster/errors"
)

// Authenticator resolves terminal credentials (PDV codes) to actors.
type Authenticator struct {
	operators Repository
	pepper    []byte
}

// NewAuthenticator creates an Authenticator that hashes codes with pepper.
func NewAuthenticator(operators Repository, pepper []byte) *Authenticator {
	return &Authenticator{
		operators: operators,
		pepper:    pepper,
	}
}

// HashCode returns the hex HMAC-SHA256 of a PDV code under pepper. Seeding
// tools use it to store codes the same way Authenticate looks them up.
func HashCode(pepper []byte, code string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate resolves credential to the operator it belongs to. A leading
// "Bearer " scheme is accepted and stripped. A missing, unknown or inactive
// code matches ErrAuthRequired; repository failures are returned wrapped.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*Actor, error) {
	code := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), "Bearer "))
	if code == "" {
		return nil, ErrAuthRequired
	}

	hash := HashCode(a.pepper, code)
	op, err := a.operators.FindByCodeHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAuthRequired
		}
		return nil, errors.Wrap(err, "lookup operator")
	}

	want, err := hex.DecodeString(op.CodeHash)
	if err != nil {
		return nil, ErrAuthRequired
	}
	got, _ := hex.DecodeString(hash)
	if subtle.ConstantTimeCompare(got, want) != 1 || !op.Active {
		return nil, ErrAuthRequired
	}

	actor := op.Actor()
	return &actor, nil
}

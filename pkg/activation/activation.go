// Package activation issues the single-use tokens that turn a freshly
// registered account into a usable one. A token is bound to the user id
// and a fingerprint of the account state, so activating the account or
// changing its password invalidates any link still in flight.
package activation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const defaultTokenExpiry = 72 * time.Hour

// ErrInvalid is returned for every validation failure. Callers must not
// report a more specific reason; distinguishing a bad id from a bad
// token would leak which account ids exist.
var ErrInvalid = errors.New("invalid or expired activation token")

var (
	secret []byte
	expiry = defaultTokenExpiry
)

type payload struct {
	UserID    string `json:"uid"`
	ExpiresAt int64  `json:"exp"`
}

func SetSecret(s string) {
	secret = []byte(s)
}

func SetExpiry(d time.Duration) {
	if d != 0 {
		expiry = d
	}
}

// EncodeUserID renders a user id the way it appears in activation
// links, alongside the token itself.
func EncodeUserID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func DecodeUserID(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalid
	}
	return string(raw), nil
}

// Fingerprint condenses the mutable account state a token must be bound
// to. Any change to one of the parts produces a different fingerprint.
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

func Generate(userID, stateFingerprint string) string {
	tok := payload{
		UserID:    userID,
		ExpiresAt: time.Now().Add(expiry).Unix(),
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return ""
	}

	encoded := base64.RawURLEncoding.EncodeToString(data)
	return encoded + "." + sign(data, stateFingerprint)
}

func Validate(tokenString, userID, stateFingerprint string) error {
	dataPart, sigPart, err := split(tokenString)
	if err != nil {
		return ErrInvalid
	}

	decoded, err := base64.RawURLEncoding.DecodeString(dataPart)
	if err != nil {
		return ErrInvalid
	}

	expected := sign(decoded, stateFingerprint)
	if !hmac.Equal([]byte(expected), []byte(sigPart)) {
		return ErrInvalid
	}

	var tok payload
	if err := json.Unmarshal(decoded, &tok); err != nil {
		return ErrInvalid
	}

	if tok.UserID != userID {
		return ErrInvalid
	}
	if time.Now().Unix() > tok.ExpiresAt {
		return ErrInvalid
	}

	return nil
}

func sign(data []byte, stateFingerprint string) string {
	key := secret
	if len(key) == 0 {
		key = []byte("gatherly-activation-fallback")
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	mac.Write([]byte(stateFingerprint))
	return hex.EncodeToString(mac.Sum(nil))
}

func split(tokenString string) (string, string, error) {
	idx := strings.LastIndexByte(tokenString, '.')
	if idx <= 0 || idx == len(tokenString)-1 {
		return "", "", ErrInvalid
	}
	return tokenString[:idx], tokenString[idx+1:], nil
}

// internal/auth/jwt.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrUnauthorized wraps every token verification failure.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the caller named by a verified token.
type Identity struct {
	PlayerID uuid.UUID
	Name     string
}

// Keys signs and verifies ed25519 (EdDSA) player tokens. Tokens are issued by
// the API service; the game service only needs the public key, the private
// key is used for local runs and tests.
type Keys struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	ttl     time.Duration // 0 => tokens never expire
}

// GenerateKeys creates a fresh key pair at runtime.
func GenerateKeys(ttl time.Duration) (*Keys, error) {
	public, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Keys{private: private, public: public, ttl: ttl}, nil
}

// LoadKeys reads raw ed25519 keys from disk. privatePath may be empty, in
// which case the keys can verify but not sign.
func LoadKeys(privatePath, publicPath string, ttl time.Duration) (*Keys, error) {
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(publicKeyData) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key file %s holds %d bytes, want %d", publicPath, len(publicKeyData), ed25519.PublicKeySize)
	}
	k := &Keys{public: ed25519.PublicKey(publicKeyData), ttl: ttl}

	if privatePath != "" {
		privateKeyData, err := os.ReadFile(privatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		k.private = ed25519.PrivateKey(privateKeyData)
	}
	return k, nil
}

// CreateJWT creates a signed token with "sub" = playerID and "name" = name.
func (k *Keys) CreateJWT(playerID uuid.UUID, name string) (string, error) {
	if k.private == nil {
		return "", errors.New("no private key loaded")
	}
	claims := jwt.MapClaims{
		"sub":  playerID.String(),
		"name": name,
		"iat":  time.Now().Unix(),
	}
	if k.ttl > 0 {
		claims["exp"] = time.Now().Add(k.ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(k.private)
}

// Authenticate verifies a token and returns the player it names.
func (k *Keys) Authenticate(tokenString string) (Identity, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return k.public, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: jwt parse error: %w", ErrUnauthorized, err)
	}
	if !t.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: invalid jwt claims", ErrUnauthorized)
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("%w: missing sub in jwt", ErrUnauthorized)
	}
	playerID, err := uuid.Parse(sub)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: sub is not a player id: %w", ErrUnauthorized, err)
	}

	name, _ := claims["name"].(string)
	return Identity{PlayerID: playerID, Name: name}, nil
}

// TTL is the lifetime given to issued tokens. Zero means they never expire.
func (k *Keys) TTL() time.Duration {
	return k.ttl
}

package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
)

// Signer signs V4 URL payloads on behalf of a service account.
type Signer interface {
	// Email is used as the GoogleAccessID of signed URLs.
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// ServiceAccountSigner signs with the private key of a service account JSON key.
type ServiceAccountSigner struct {
	email string
	key   *rsa.PrivateKey
}

var _ Signer = (*ServiceAccountSigner)(nil)

// LoadServiceAccountSigner accepts the inline JSON key resolved from Secret Manager or a
// path to the key file.
func LoadServiceAccountSigner(value string) (*ServiceAccountSigner, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return nil, errors.New("storage: signer credentials are empty")
	case strings.HasPrefix(value, "{"):
		return NewServiceAccountSignerFromJSON([]byte(value))
	}
	contents, err := os.ReadFile(value)
	if err != nil {
		return nil, fmt.Errorf("storage: read service account file: %w", err)
	}
	return NewServiceAccountSignerFromJSON(contents)
}

// NewServiceAccountSignerFromJSON parses a service account key document.
func NewServiceAccountSignerFromJSON(data []byte) (*ServiceAccountSigner, error) {
	cfg, err := google.JWTConfigFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("storage: parse service account key: %w", err)
	}
	if strings.TrimSpace(cfg.Email) == "" {
		return nil, errors.New("storage: service account key has no client_email")
	}
	key, err := rsaKeyFromPEM(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &ServiceAccountSigner{email: strings.TrimSpace(cfg.Email), key: key}, nil
}

func (s *ServiceAccountSigner) Email() string {
	if s == nil {
		return ""
	}
	return s.email
}

// SignBytes returns the RSASSA-PKCS1-v1_5 SHA-256 signature of payload.
func (s *ServiceAccountSigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("storage: signer not initialised")
	}
	if len(payload) == 0 {
		return nil, errors.New("storage: payload is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign payload: %w", err)
	}
	return sig, nil
}

// rsaKeyFromPEM accepts PKCS#8 (what Google issues) and legacy PKCS#1 keys.
func rsaKeyFromPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("storage: private_key is not PEM encoded")
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("storage: private key is not RSA")
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("storage: parse private key: %w", err)
	}
	return key, nil
}

package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func serviceAccountJSON(t *testing.T) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	data, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "media-signer@example.iam.gserviceaccount.com",
		"private_key":  string(pemKey),
	})
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	return data, key
}

func TestLoadServiceAccountSignerInlineAndFile(t *testing.T) {
	data, key := serviceAccountJSON(t)
	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	for _, input := range []string{string(data), path} {
		signer, err := LoadServiceAccountSigner(input)
		if err != nil {
			t.Fatalf("LoadServiceAccountSigner returned error: %v", err)
		}
		if signer.Email() != "media-signer@example.iam.gserviceaccount.com" {
			t.Fatalf("unexpected email %s", signer.Email())
		}

		payload := []byte("GOOG4-RSA-SHA256 payload")
		sig, err := signer.SignBytes(context.Background(), payload)
		if err != nil {
			t.Fatalf("SignBytes returned error: %v", err)
		}
		digest := sha256.Sum256(payload)
		if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
			t.Fatalf("signature did not verify: %v", err)
		}
	}
}

func TestLoadServiceAccountSignerRejectsBadInput(t *testing.T) {
	inputs := []string{
		"",
		`{"type":"service_account","client_email":"a@b"}`,
		`{"type":"authorized_user","client_email":"a@b"}`,
		"{not json",
		filepath.Join(t.TempDir(), "missing.json"),
	}
	for _, input := range inputs {
		if _, err := LoadServiceAccountSigner(input); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

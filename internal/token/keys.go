package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"
)

// KeyManager holds the ES256 signing key shared by every server instance.
type KeyManager struct {
	privateKey *ecdsa.PrivateKey
	kid        string // Key ID (fingerprint)
}

// NewKeyManager wraps an existing P-256 private key.
// The key ID (kid) is computed as the base58-encoded SHA256 hash of the public key DER bytes.
func NewKeyManager(privateKey *ecdsa.PrivateKey) (*KeyManager, error) {
	if privateKey == nil {
		return nil, errors.New("private key is required")
	}
	if privateKey.Curve != elliptic.P256() {
		return nil, errors.New("signing key must use the P-256 curve")
	}

	pubKeyDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	hash := sha256.Sum256(pubKeyDER)

	return &KeyManager{
		privateKey: privateKey,
		kid:        base58.Encode(hash[:]),
	}, nil
}

// GenerateKeyManager creates a KeyManager with a fresh P-256 keypair.
func GenerateKeyManager() (*KeyManager, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}
	return NewKeyManager(privateKey)
}

// LoadKeyManager loads a PEM-encoded private key. value is either the PEM
// text itself or a path to a file containing it.
func LoadKeyManager(value string) (*KeyManager, error) {
	data := []byte(value)
	if !strings.HasPrefix(strings.TrimSpace(value), "-----BEGIN") {
		var err error
		data, err = os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key file: %w", err)
		}
	}

	privateKey, err := ParsePrivateKeyPEM(data)
	if err != nil {
		return nil, err
	}
	return NewKeyManager(privateKey)
}

// ParsePrivateKeyPEM parses a SEC1 ("EC PRIVATE KEY") or PKCS#8 ("PRIVATE KEY") ECDSA key.
func ParsePrivateKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode signing key PEM")
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC private key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 private key: %w", err)
		}
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("signing key is not an ECDSA key")
		}
		return ecKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// EncodePrivateKeyPEM encodes the key as a SEC1 PEM block.
func (km *KeyManager) EncodePrivateKeyPEM() ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(km.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// Kid returns the key ID (fingerprint) for this keypair.
func (km *KeyManager) Kid() string {
	return km.kid
}

// PublicKey returns the verification key.
func (km *KeyManager) PublicKey() *ecdsa.PublicKey {
	return &km.privateKey.PublicKey
}

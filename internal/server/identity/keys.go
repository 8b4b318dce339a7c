package identity

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnknownKey is returned when no key matches the assertion's kid.
var ErrUnknownKey = errors.New("unknown signing key")

// ErrInvalidKey is returned when PEM content cannot be parsed as a public key.
var ErrInvalidKey = errors.New("invalid key")

// KeySource resolves the public key an assertion was signed with.
type KeySource interface {
	Key(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// StaticKeys is a fixed set of public keys indexed by kid. The empty kid
// selects the only key when exactly one is configured.
type StaticKeys map[string]crypto.PublicKey

func (s StaticKeys) Key(_ context.Context, kid string) (crypto.PublicKey, error) {
	if k, ok := s[kid]; ok {
		return k, nil
	}
	if kid == "" && len(s) == 1 {
		for _, k := range s {
			return k, nil
		}
	}
	return nil, ErrUnknownKey
}

// LoadStaticKeys reads one or more PEM public keys from path. Each block may
// carry a "kid" header; blocks without one are keyed by their position.
func LoadStaticKeys(path string) (StaticKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keys file: %w", err)
	}
	return ParseStaticKeys(data)
}

// ParseStaticKeys parses PEM-encoded RSA/ECDSA public keys.
func ParseStaticKeys(data []byte) (StaticKeys, error) {
	keys := StaticKeys{}
	rest := data
	for i := 0; ; i++ {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		key, err := parsePublicKey(block)
		if err != nil {
			return nil, err
		}
		kid := strings.TrimSpace(block.Headers["kid"])
		if kid == "" {
			kid = fmt.Sprintf("key-%d", i)
		}
		keys[kid] = key
	}
	if len(keys) == 0 {
		return nil, ErrInvalidKey
	}
	return keys, nil
}

func parsePublicKey(block *pem.Block) (crypto.PublicKey, error) {
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		return cert.PublicKey, nil
	default:
		return nil, ErrInvalidKey
	}
}

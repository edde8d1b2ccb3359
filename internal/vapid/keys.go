package vapid

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrMissingKey  = errors.New("vapid: key is empty")
	ErrInvalidKey  = errors.New("vapid: invalid key")
	ErrKeyMismatch = errors.New("vapid: public key does not match private key")
)

const (
	scalarLen = 32
	pointLen  = 65
)

// Keys is the canonical VAPID key pair, resolved once at startup.
type Keys struct {
	priv *ecdsa.PrivateKey
	pub  []byte // uncompressed point
}

// Load resolves the configured key pair. public may be empty, in which case
// it is derived from private.
func Load(public, private string) (*Keys, error) {
	privMat, err := ParseMaterial(private)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	priv, err := privateFromMaterial(privMat)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	k, err := fromECDSA(priv)
	if err != nil {
		return nil, err
	}

	if public == "" {
		return k, nil
	}
	pubMat, err := ParseMaterial(public)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	point, err := pointFromMaterial(pubMat)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	if !bytes.Equal(point, k.pub) {
		return nil, ErrKeyMismatch
	}
	return k, nil
}

// Generate creates a fresh P-256 pair.
func Generate() (*Keys, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return fromECDSA(priv)
}

func fromECDSA(priv *ecdsa.PrivateKey) (*Keys, error) {
	ek, err := priv.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if ek.Curve() != ecdh.P256() {
		return nil, fmt.Errorf("%w: curve is not P-256", ErrInvalidKey)
	}
	return &Keys{priv: priv, pub: ek.PublicKey().Bytes()}, nil
}

func privateFromMaterial(m KeyMaterial) (*ecdsa.PrivateKey, error) {
	switch v := m.(type) {
	case Raw:
		return privateFromScalar(v)
	case PEM:
		return privateFromPEM(string(v))
	default:
		return nil, ErrInvalidKey
	}
}

func privateFromScalar(b []byte) (*ecdsa.PrivateKey, error) {
	if len(b) != scalarLen {
		return nil, fmt.Errorf("%w: raw private key must be %d bytes, got %d", ErrInvalidKey, scalarLen, len(b))
	}
	ek, err := ecdh.P256().NewPrivateKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	point := ek.PublicKey().Bytes()
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(point[1:33]),
			Y:     new(big.Int).SetBytes(point[33:]),
		},
		D: new(big.Int).SetBytes(b),
	}, nil
}

func privateFromPEM(s string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKey)
	}
	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: pkcs8: %v", ErrInvalidKey, err)
		}
		ec, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: pkcs8 key is %T, want ECDSA", ErrInvalidKey, key)
		}
		return ec, nil
	case "EC PRIVATE KEY":
		ec, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: sec1: %v", ErrInvalidKey, err)
		}
		return ec, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
	}
}

func pointFromMaterial(m KeyMaterial) ([]byte, error) {
	switch v := m.(type) {
	case Raw:
		if len(v) != pointLen || v[0] != 0x04 {
			return nil, fmt.Errorf("%w: raw public key must be a %d-byte uncompressed point", ErrInvalidKey, pointLen)
		}
		if _, err := ecdh.P256().NewPublicKey(v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return []byte(v), nil
	case PEM:
		block, _ := pem.Decode([]byte(v))
		if block == nil || block.Type != "PUBLIC KEY" {
			return nil, fmt.Errorf("%w: want a PUBLIC KEY PEM block", ErrInvalidKey)
		}
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: spki: %v", ErrInvalidKey, err)
		}
		ec, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: spki key is %T, want ECDSA", ErrInvalidKey, key)
		}
		ek, err := ec.ECDH()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return ek.Bytes(), nil
	default:
		return nil, ErrInvalidKey
	}
}

// ECDSA returns the private key.
func (k *Keys) ECDSA() *ecdsa.PrivateKey { return k.priv }

// PublicKey is the base64url uncompressed point sent as the VAPID "k" parameter.
func (k *Keys) PublicKey() string { return base64.RawURLEncoding.EncodeToString(k.pub) }

// PrivateScalar is the base64url 32-byte scalar.
func (k *Keys) PrivateScalar() string {
	b := k.priv.D.FillBytes(make([]byte, scalarLen))
	return base64.RawURLEncoding.EncodeToString(b)
}

// PEM returns the PKCS8 private and SPKI public documents.
func (k *Keys) PEM() (private, public string, err error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.priv)
	if err != nil {
		return "", "", fmt.Errorf("marshal pkcs8: %w", err)
	}
	pubDer, err := x509.MarshalPKIXPublicKey(&k.priv.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("marshal spki: %w", err)
	}
	private = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	public = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDer}))
	return private, public, nil
}

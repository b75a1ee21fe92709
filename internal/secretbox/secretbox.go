// Package secretbox sella valores de configuración con AES-256-GCM.
//
// Formato: "enc:" + base64(nonce) + "|" + base64(ciphertext).
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// Prefix marca un valor sellado.
	Prefix    = "enc:"
	KeyLength = 32 // AES-256
	nonceSize = 12
	sep       = "|"
)

var ErrMalformed = errors.New("secretbox: formato inválido, esperado enc:base64(nonce)|base64(ciphertext)")

// Box cifra y descifra con una clave fija.
type Box struct {
	aead cipher.AEAD
}

// ParseKey acepta la clave en base64 (con o sin padding), hex o 32 bytes crudos.
func ParseKey(s string) ([]byte, error) {
	// raw primero: una clave cruda puede empezar o terminar en bytes de espacio
	if len(s) == KeyLength {
		return []byte(s), nil
	}
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == KeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(b) == KeyLength {
		return b, nil
	}
	if len(s) == 2*KeyLength {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("secretbox: clave inválida, se requieren %d bytes (base64, hex o raw)", KeyLength)
}

// New arma un Box a partir de una clave en cualquiera de los formatos de ParseKey.
func New(key string) (*Box, error) {
	k, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// GenerateKey devuelve una clave nueva en base64.
func GenerateKey() (string, error) {
	k := make([]byte, KeyLength)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(k), nil
}

// IsSealed indica si v tiene el prefijo de valor sellado.
func IsSealed(v string) bool { return strings.HasPrefix(v, Prefix) }

// Seal cifra plain. Cada llamada usa un nonce nuevo.
func (b *Box) Seal(plain string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, []byte(plain), nil)
	return Prefix + base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Open descifra un valor producido por Seal.
func (b *Box) Open(sealed string) (string, error) {
	if !IsSealed(sealed) {
		return "", ErrMalformed
	}
	parts := strings.Split(strings.TrimPrefix(sealed, Prefix), sep)
	if len(parts) != 2 {
		return "", ErrMalformed
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", ErrMalformed
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformed
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

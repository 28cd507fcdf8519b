// Package cipher cifra secretos at-rest con AES-256-CBC y clave/IV fijos
// provistos por configuración.
//
// El IV fijo hace al esquema determinístico: el mismo plaintext produce el
// mismo ciphertext. Es una limitación conocida del material criptográfico
// heredado; la clave y el IV viven en la config y no rotan.
//
// Los valores cifrados llevan el prefijo "CBCV1:" para poder distinguir
// secretos cifrados de valores legacy guardados en texto plano, sin recurrir
// a intentar descifrar para ver si "parece" plaintext.
package cipher

import (
	"bytes"
	"crypto/aes"
	cryptocipher "crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	// FormatPrefix marca un valor cifrado con este esquema (versión 1).
	FormatPrefix = "CBCV1:"

	keyLen = 32 // AES-256
	ivLen  = aes.BlockSize
)

var (
	// ErrNotEncrypted indica que el valor no lleva el prefijo de formato.
	ErrNotEncrypted = errors.New("value is not in encrypted format")

	// ErrMalformed indica ciphertext corrupto o con padding inválido.
	ErrMalformed = errors.New("malformed ciphertext")
)

// Cipher cifra y descifra strings con una clave e IV fijos.
type Cipher struct {
	key []byte
	iv  []byte
}

// New construye un Cipher desde clave e IV en base64.
// Falla rápido si la clave no decodifica a 32 bytes o el IV a 16.
func New(keyB64, ivB64 string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(keyB64))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != keyLen {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keyLen, len(key))
	}
	iv, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ivB64))
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	if len(iv) != ivLen {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", ivLen, len(iv))
	}
	return &Cipher{key: key, iv: iv}, nil
}

// IsEncrypted reporta si un valor almacenado lleva el prefijo de formato.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, FormatPrefix)
}

// Encrypt cifra plainText y devuelve CBCV1:base64(ciphertext).
// El string vacío pasa sin cambios.
func (c *Cipher) Encrypt(plainText string) (string, error) {
	if plainText == "" {
		return "", nil
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	padded := pkcs7Pad([]byte(plainText), aes.BlockSize)
	ct := make([]byte, len(padded))
	cryptocipher.NewCBCEncrypter(block, c.iv).CryptBlocks(ct, padded)
	return FormatPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt recibe CBCV1:base64(ciphertext) y devuelve el texto plano.
// El string vacío pasa sin cambios. Un valor sin prefijo retorna
// ErrNotEncrypted (valor legacy en texto plano).
func (c *Cipher) Decrypt(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	if !IsEncrypted(stored) {
		return "", ErrNotEncrypted
	}
	ct, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, FormatPrefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", ErrMalformed
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	pt := make([]byte, len(ct))
	cryptocipher.NewCBCDecrypter(block, c.iv).CryptBlocks(pt, ct)
	unpadded, err := pkcs7Unpad(pt, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrMalformed
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, ErrMalformed
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrMalformed
		}
	}
	return b[:len(b)-n], nil
}

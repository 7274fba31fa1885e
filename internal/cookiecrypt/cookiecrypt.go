// Package cookiecrypt builds the encrypted Steam credential payload that buff
// expects when it is asked to send trade offers on the user's behalf.
package cookiecrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	keySize   = 16
	blockSize = aes.BlockSize
)

// ErrMissingCookie is returned when a cookie required for the payload is absent.
var ErrMissingCookie = errors.New("required cookie is missing")

type cookieRef struct {
	name   string
	domain string
}

// payloadCookies is the exact order buff decodes the cookie string in.
var payloadCookies = []cookieRef{
	{name: "steamLoginSecure", domain: "store.steampowered.com"},
	{name: "steamRefresh_steam", domain: "login.steampowered.com"},
	{name: "sessionid", domain: "steamcommunity.com"},
	{name: "steamCountry", domain: "steamcommunity.com"},
	{name: "steamLoginSecure", domain: "steamcommunity.com"},
}

// CookieSource looks up a cookie value by name and exact domain.
type CookieSource interface {
	Get(name, domain string) (string, bool)
}

// Encryptor wraps a random AES key under buff's RSA public key.
type Encryptor struct {
	pub  *rsa.PublicKey
	rand io.Reader
}

// NewEncryptor parses a PEM encoded RSA public key.
func NewEncryptor(pemBytes []byte) (*Encryptor, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found in public key")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		pkcs1, pkcs1Err := x509.ParsePKCS1PublicKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, errors.Wrap(err, "parse public key")
		}
		parsed = pkcs1
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.Errorf("public key is %T, want RSA", parsed)
	}

	return &Encryptor{pub: pub, rand: rand.Reader}, nil
}

// LoadEncryptor reads the public key from a PEM file.
func LoadEncryptor(path string) (*Encryptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read public key %s", path)
	}
	return NewEncryptor(data)
}

// CookieString joins the required cookies as "name=value; name=value".
func CookieString(src CookieSource) (string, error) {
	parts := make([]string, 0, len(payloadCookies))
	for _, ref := range payloadCookies {
		value, ok := src.Get(ref.name, ref.domain)
		if !ok {
			return "", errors.Wrapf(ErrMissingCookie, "%s@%s", ref.name, ref.domain)
		}
		parts = append(parts, ref.name+"="+value)
	}
	return strings.Join(parts, "; "), nil
}

// Encrypt returns base64(rsaWrappedKey || iv || aesCBC(pkcs7(plaintext))).
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(e.rand, key); err != nil {
		return "", errors.Wrap(err, "generate key")
	}
	iv := make([]byte, blockSize)
	if _, err := io.ReadFull(e.rand, iv); err != nil {
		return "", errors.Wrap(err, "generate iv")
	}

	wrappedKey, err := rsa.EncryptPKCS1v15(e.rand, e.pub, key)
	if err != nil {
		return "", errors.Wrap(err, "wrap key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Wrap(err, "init cipher")
	}

	padded := pad([]byte(plaintext), blockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, len(wrappedKey)+len(iv)+len(ciphertext))
	out = append(out, wrappedKey...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// EncryptCookies builds the cookie string from src and encrypts it.
func (e *Encryptor) EncryptCookies(src CookieSource) (string, error) {
	plaintext, err := CookieString(src)
	if err != nil {
		return "", err
	}
	return e.Encrypt(plaintext)
}

// pad applies PKCS#7 padding; a full block is added for aligned input.
func pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

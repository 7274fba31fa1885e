// Package steamguard implements the Steam mobile authenticator primitives:
// login codes, confirmation keys and the device id.
package steamguard

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

const (
	codeAlphabet = "23456789BCDFGHJKMNPQRTVWXY"
	codeLength   = 5
	codePeriod   = 30
)

// GenerateCode returns the five character login code valid at t.
func GenerateCode(sharedSecret string, t time.Time) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(sharedSecret)
	if err != nil {
		return "", errors.Wrap(err, "decode shared secret")
	}

	msg := make([]byte, 8)
	binary.BigEndian.PutUint64(msg, uint64(t.Unix()/codePeriod))

	mac := hmac.New(sha1.New, secret)
	mac.Write(msg)
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	fullCode := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeAlphabet[fullCode%uint32(len(codeAlphabet))]
		fullCode /= uint32(len(codeAlphabet))
	}
	return string(code), nil
}

// ConfirmationKey signs a mobile confirmation request for tag at t.
func ConfirmationKey(identitySecret string, t time.Time, tag string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(identitySecret)
	if err != nil {
		return "", errors.Wrap(err, "decode identity secret")
	}

	msg := make([]byte, 8, 8+len(tag))
	binary.BigEndian.PutUint64(msg, uint64(t.Unix()))
	msg = append(msg, tag...)

	mac := hmac.New(sha1.New, secret)
	mac.Write(msg)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// DeviceID derives the android device id Steam expects from a steam id.
func DeviceID(steamID string) string {
	sum := sha1.Sum([]byte(steamID))
	h := hex.EncodeToString(sum[:])
	return fmt.Sprintf("android:%s-%s-%s-%s-%s", h[:8], h[8:12], h[12:16], h[16:20], h[20:32])
}

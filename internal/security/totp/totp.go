package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	periodSeconds = 30
	digits        = 6
	secretLen     = 16
)

// GenerateSecret retorna un secreto de 16 chars derivado de un UUID (sin
// guiones). Los bytes ASCII del string son la clave HMAC; no se decodifica
// como base32.
func GenerateSecret() string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s[:secretLen]
}

// ManualEntryKey codifica el secreto en base32 sin padding (RFC 3548) para
// carga manual en la app autenticadora.
func ManualEntryKey(secret string) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(secret))
}

// OTPAuthURL construye otpauth:// para QR.
func OTPAuthURL(issuer, accountName, secret string) string {
	// otpauth://totp/{issuer}:{account}?secret=...&issuer=...&algorithm=SHA1&digits=6&period=30
	label := url.PathEscape(fmt.Sprintf("%s:%s", issuer, accountName))
	q := url.Values{}
	q.Set("secret", ManualEntryKey(secret))
	q.Set("issuer", issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", "6")
	q.Set("period", "30")
	return fmt.Sprintf("otpauth://totp/%s?%s", label, q.Encode())
}

// Verify valida un código TOTP en ventana +/- windowSteps (default 1).
// Evita replay comparando el contador con lastCounterUsed: un contador ya
// consumido nunca vuelve a matchear.
func Verify(secret, code string, t time.Time, windowSteps int, lastCounterUsed *int64) (ok bool, counter int64) {
	code = strings.TrimSpace(code)
	if len(code) != digits {
		return false, 0
	}
	if windowSteps <= 0 {
		windowSteps = 1
	}
	counter = t.Unix() / periodSeconds
	start := counter - int64(windowSteps)
	end := counter + int64(windowSteps)
	for c := start; c <= end; c++ {
		if lastCounterUsed != nil && c <= *lastCounterUsed {
			continue // anti-replay
		}
		if gen([]byte(secret), c) == code {
			return true, c
		}
	}
	return false, 0
}

// CodeAt genera el código para un instante dado. Sólo para provisioning/tests.
func CodeAt(secret string, t time.Time) string {
	return gen([]byte(secret), t.Unix()/periodSeconds)
}

func gen(secretRaw []byte, counter int64) string {
	// HOTP(K, C) con HMAC-SHA1 (RFC 4226 / 6238)
	var msg [8]byte
	for i := 7; i >= 0; i-- {
		msg[i] = byte(counter & 0xff)
		counter >>= 8
	}
	m := hmac.New(sha1.New, secretRaw)
	_, _ = m.Write(msg[:])
	sum := m.Sum(nil)
	offset := int(sum[len(sum)-1] & 0x0f)
	bin := (int(sum[offset])&0x7f)<<24 | int(sum[offset+1])<<16 | int(sum[offset+2])<<8 | int(sum[offset+3])
	otp := bin % int(math.Pow10(digits))
	return fmt.Sprintf("%06d", otp)
}

package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac>" on every signed delivery.
const SignatureHeader = "X-Signature"

// DefaultTolerance bounds the accepted clock skew between signer and receiver.
const DefaultTolerance = 5 * time.Minute

func mac(secret string, ts int64, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(strconv.FormatInt(ts, 10)))
	m.Write([]byte{'.'})
	m.Write(body)
	return m.Sum(nil)
}

// Sign returns the header value for body signed at ts.
func Sign(secret string, body []byte, ts time.Time) string {
	sec := ts.Unix()
	return "t=" + strconv.FormatInt(sec, 10) + ",v1=" + hex.EncodeToString(mac(secret, sec, body))
}

// Verify checks a header produced by Sign. Signatures older or newer than
// tolerance relative to now are rejected; tolerance <= 0 disables the check.
func Verify(secret string, body []byte, header string, now time.Time, tolerance time.Duration) bool {
	var ts int64
	var sig []byte
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return false
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return false
			}
			ts = n
		case "v1":
			b, err := hex.DecodeString(v)
			if err != nil {
				return false
			}
			sig = b
		}
	}
	if ts == 0 || sig == nil {
		return false
	}
	if tolerance > 0 {
		skew := now.Sub(time.Unix(ts, 0))
		if skew < -tolerance || skew > tolerance {
			return false
		}
	}
	return hmac.Equal(mac(secret, ts, body), sig)
}

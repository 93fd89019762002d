// Package crypto provides request signing for the Kraken private API and
// encrypted at-rest storage for the API secret.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
)

// KrakenAuth holds the credentials for Kraken private API requests. Secret is
// the base64-encoded private key as issued by the exchange.
type KrakenAuth struct {
	Key    string
	Secret string
}

// Sign computes the API-Sign header value for a private endpoint request:
// base64(HMAC-SHA512(b64decode(secret), path + SHA256(nonce + postdata))).
func (a *KrakenAuth) Sign(path, nonce, postData string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(a.Secret)
	if err != nil {
		return "", fmt.Errorf("crypto: decode api secret: %w", err)
	}

	inner := sha256.Sum256([]byte(nonce + postData))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(inner[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// String returns a redacted representation suitable for logging.
func (a *KrakenAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("KrakenAuth{key=%s, secret=%s}", redact(a.Key), redact(a.Secret))
}

package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/http"
)

const webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type authError struct {
	status  int
	message string
}

func (e *authError) Error() string {
	return e.message
}

// verifyWebhookSecret compares the presented header with the configured
// secret in constant time. An empty secret disables the check.
func verifyWebhookSecret(secret, presented string) *authError {
	if secret == "" {
		return nil
	}
	if presented == "" {
		return &authError{status: http.StatusForbidden, message: "forbidden"}
	}
	want := sha256.Sum256([]byte(secret))
	got := sha256.Sum256([]byte(presented))
	if !hmac.Equal(want[:], got[:]) {
		return &authError{status: http.StatusForbidden, message: "forbidden"}
	}
	return nil
}

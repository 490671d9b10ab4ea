package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureVerifier checks the signature the gateway hands back to the client
// after a successful payment: hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

func (v *SignatureVerifier) Sign(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))

	return hex.EncodeToString(mac.Sum(nil))
}

func (v *SignatureVerifier) Verify(gatewayOrderID, gatewayPaymentID, signature string) bool {
	expected := v.Sign(gatewayOrderID, gatewayPaymentID)

	return hmac.Equal([]byte(expected), []byte(signature))
}

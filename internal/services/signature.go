package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignPayment вычисляет подпись клиентского подтверждения: HMAC-SHA256(secret, "order|payment") в hex
func SignPayment(providerOrderID, providerPaymentID, secret string) string {
	return computeSignature(secret, []byte(providerOrderID+"|"+providerPaymentID))
}

// VerifyPaymentSignature сравнивает подпись за постоянное время
func VerifyPaymentSignature(providerOrderID, providerPaymentID, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return signaturesEqual(SignPayment(providerOrderID, providerPaymentID, secret), signature)
}

// SignWebhook вычисляет подпись сырого тела вебхука
func SignWebhook(body []byte, secret string) string {
	return computeSignature(secret, body)
}

// VerifyWebhookSignature проверяет заголовок x-razorpay-signature
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return signaturesEqual(SignWebhook(body, secret), signature)
}

func computeSignature(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// signaturesEqual сравнивает байты как есть, без нормализации регистра
func signaturesEqual(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(got))
}

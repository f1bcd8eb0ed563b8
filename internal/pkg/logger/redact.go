package logger

// RedactHandle masks a customer handle for safe logging.
// "frustrated_customer_42" → "fr***"
// Handles of ≤2 chars are fully masked.
func RedactHandle(handle string) string {
	if len(handle) > 2 {
		return handle[:2] + "***"
	}
	return "***"
}

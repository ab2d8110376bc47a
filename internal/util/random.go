// Package util provides utility functions for the RoomPipe application.
package util

import (
	"math/rand"
	"strings"
)

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand; not suitable for cryptographic purposes.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.Intn(16)])
	}

	return builder.String()
}

// GeneratePromptNonce generates the short nonce embedded in inline keyboard
// payloads to invalidate superseded keyboards. Eight hex characters keep the
// full payload well under Telegram's 64-byte callback data limit.
func GeneratePromptNonce() string {
	return GenerateRandomHex(8)
}

// Package util provides utility functions for the U-Well application.
package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; the ids are correlation tokens, not secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateSessionID generates a session identifier with "sess_" prefix.
func GenerateSessionID() string {
	return GenerateRandomID("sess_", 32)
}

// PickRandom returns a pseudo-randomly chosen element of items, or the zero
// value when items is empty.
func PickRandom[T any](items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[rand.IntN(len(items))]
}

// RandomScore returns a pseudo-random score in [low, high].
func RandomScore(low, high int) int {
	if high <= low {
		return low
	}
	return low + rand.IntN(high-low+1)
}

package onboarding

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Join codes are short, human-shareable and case-insensitive. The ambiguous
// characters 0/O and 1/I are excluded so a code read over the phone survives
// transcription.
const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewJoinCode generates a random uppercase join code.
func NewJoinCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating join code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// NormalizeCode canonicalises user input before matching: trim, uppercase
// and drop separator characters, keeping only letters and digits. "al-noor1"
// and "ALNOOR1" normalise to the same value.
func NormalizeCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(code)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

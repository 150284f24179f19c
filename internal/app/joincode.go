package app

import (
	"crypto/rand"
	"strings"
)

// JoinCodeAlphabet omits 0, O, 1 and I.
const JoinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const joinCodeLength = 6

// GenerateJoinCode draws a random code; the alphabet has 32 symbols so masking a byte stays uniform.
func GenerateJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = JoinCodeAlphabet[b&31]
	}
	return string(buf), nil
}

// NormalizeJoinCode makes code lookups case-insensitive.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

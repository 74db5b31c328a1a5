package address

import (
	"regexp"
	"strings"

	"github.com/careloop/reminder-engine/internal/domain"
)

var (
	// phonePattern is an E.164-like shape: optional +, 8-15 digits, no
	// leading zero.
	phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{7,14}$`)

	// emailPattern is deliberately conservative: it rejects obviously
	// malformed addresses without trying to police unusual-but-valid ones.
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[A-Za-z]{2,}$`)

	phoneJunk = strings.NewReplacer("(", "", ")", "", "-", "", " ", "")
)

// IsValid reports whether address is a plausible destination for channel.
// A failed validation is a permanent error: the caller must never retry it.
func IsValid(channel domain.Channel, address string) bool {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return false
	}

	if channel.IsPhoneBased() {
		return phonePattern.MatchString(NormalizePhone(trimmed))
	}

	if channel == domain.ChannelEmail {
		return emailPattern.MatchString(trimmed)
	}

	return false
}

// NormalizePhone strips the separators providers commonly accept so the
// stored destination compares stably across enqueue and callbacks.
func NormalizePhone(address string) string {
	return phoneJunk.Replace(strings.TrimSpace(address))
}

// Normalize canonicalizes an address for storage and correlation lookups.
func Normalize(channel domain.Channel, address string) string {
	if channel.IsPhoneBased() {
		return NormalizePhone(address)
	}
	return strings.ToLower(strings.TrimSpace(address))
}

package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Input guards for the order flow. A failed guard keeps the conversation
// in its current state and re-prompts.

var (
	nameRe    = regexp.MustCompile(`^\p{L}+(?:-\p{L}+)?\s+\p{L}+(?:-\p{L}+)?$`)
	ddmmyyyy  = regexp.MustCompile(`\b\d{2}\.\d{2}\.\d{4}\b`)
	isoDate   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	qtyRe     = regexp.MustCompile(`^[1-9]\d{0,2}$`)
	nonPhone  = regexp.MustCompile(`[^\d+]`)
	nonDigits = regexp.MustCompile(`\D`)
)

// ValidName accepts a two-token name: letters only, optional inner hyphen
// per token, whitespace-separated.
func ValidName(s string) bool {
	return nameRe.MatchString(strings.TrimSpace(s))
}

// NormalizePhone reduces free-form input to "+<digits>". A leading "8" is
// rewritten to "+7"; anything under 10 digits is rejected.
func NormalizePhone(s string) (string, bool) {
	kept := strings.TrimSpace(nonPhone.ReplaceAllString(s, ""))
	if strings.HasPrefix(kept, "8") {
		kept = "+7" + kept[1:]
	}
	digits := nonDigits.ReplaceAllString(kept, "")
	if len(digits) < 10 {
		return "", false
	}
	if strings.HasPrefix(kept, "+") {
		return kept, true
	}
	return "+" + digits, true
}

// ExtractDate pulls a dd.mm.yyyy date out of an arbitrary string. ISO
// date and date-time forms are converted; with nothing recognizable the
// result is today's date in the same format.
func ExtractDate(s string) string {
	s = strings.TrimSpace(s)
	if s != "" {
		if m := ddmmyyyy.FindString(s); m != "" {
			return m
		}
		if m := isoDate.FindStringSubmatch(s); m != nil {
			return m[3] + "." + m[2] + "." + m[1]
		}
	}
	return time.Now().Format("02.01.2006")
}

// ValidAddress requires at least 5 characters of free text.
func ValidAddress(s string) bool {
	return len([]rune(strings.TrimSpace(s))) >= 5
}

// ParseQuantity accepts a bounded positive integer, 1 to 999.
func ParseQuantity(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if !qtyRe.MatchString(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// normalizeDish collapses whitespace and case for (day, dish) identity.
func normalizeDish(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

package utils

import "regexp"

var (
	emailPattern  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+`)
	numberPattern = regexp.MustCompile(`\b\d{10,}\b`)
)

// Redact masks e-mail addresses and long digit runs (phone or account
// numbers) so error text can be logged.
func Redact(s string) string {
	s = emailPattern.ReplaceAllString(s, "[redacted@email]")
	return numberPattern.ReplaceAllString(s, "[redacted-number]")
}

// RedactError is Redact applied to err.Error(). A nil error yields "".
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return Redact(err.Error())
}

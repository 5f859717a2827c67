package utils

import "strings"

// SqueezeSpace collapses every run of whitespace to one space and trims the ends.
func SqueezeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

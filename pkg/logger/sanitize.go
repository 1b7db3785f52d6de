package logger

import (
	"net/url"
	"strings"
)

// SanitizedEmail keeps the first letter of the mailbox and the top-level
// domain so log lines stay correlatable without exposing the address:
// "ada@example.com" becomes "a**@*******.com".
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	labels := strings.Split(domain, ".")
	for i := range labels[:len(labels)-1] {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}

	return local[:1] + strings.Repeat("*", len(local)-1) + "@" + strings.Join(labels, ".")
}

// secretKeyFragments flags query keys that can carry credentials or
// one-time material on this service's routes
var secretKeyFragments = []string{
	"password", "token", "secret", "code", "otp", "challenge", "credential", "email", "auth",
}

// QueryHasSecrets reports whether a raw query string should be kept out of
// request logs. A query that does not parse is treated as sensitive.
func QueryHasSecrets(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return true
	}
	for key := range values {
		key = strings.ToLower(key)
		for _, fragment := range secretKeyFragments {
			if strings.Contains(key, fragment) {
				return true
			}
		}
	}
	return false
}

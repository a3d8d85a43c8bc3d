// Package mask redacts personal data before it reaches logs or events.
package mask

import "strings"

// Email keeps the first two characters of the local part and the domain
func Email(email string) string {
	if len(email) < 5 {
		return "***"
	}
	atIdx := strings.IndexByte(email, '@')
	if atIdx < 2 {
		return "***"
	}
	return email[:2] + "***" + email[atIdx:]
}

// Phone keeps the last four digits
func Phone(phone string) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return "***"
	}
	return "***" + string(digits[len(digits)-4:])
}

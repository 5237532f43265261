package auth

import "unicode"

// PasswordStrongEnough enforces the password policy: at least eight
// characters with an upper-case letter, a lower-case letter, a digit,
// and a special character.
func PasswordStrongEnough(password string) bool {
	if len(password) < 8 {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	return upper && lower && digit && special
}

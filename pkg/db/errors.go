package db

import "strings"

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. When constraint names are provided, the helper looks
// for any of them in the error message.
func IsUniqueViolation(err error, constraintNames ...string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if len(constraintNames) > 0 {
		for _, name := range constraintNames {
			if name != "" && strings.Contains(msg, name) {
				return true
			}
		}
		return false
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

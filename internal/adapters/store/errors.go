package store

import "strings"

// isUniqueViolation catches sqlite constraint errors that gorm does not translate
// unless TranslateError is enabled.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package handlers

import (
	"strings"

	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func isValidGroupRole(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "student", "admin", "top_admin":
		return true
	default:
		return false
	}
}

func isValidVisibility(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "private", "public":
		return true
	default:
		return false
	}
}

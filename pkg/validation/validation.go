package validation

import (
	"errors"
	"regexp"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`^[1-9][0-9]{5,15}$`)
	groupPattern = regexp.MustCompile(`^[0-9]{6,}(-[0-9]+)?$`)
)

// ValidatePhone ensures international format (no leading 0, digits only, length 6-16).
func ValidatePhone(phone string) error {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return errors.New("phone number cannot be empty")
	}
	if strings.HasPrefix(trimmed, "+") {
		trimmed = trimmed[1:]
	}
	if strings.HasPrefix(trimmed, "0") {
		return errors.New("phone number must be in international format without leading 0")
	}
	if !phonePattern.MatchString(trimmed) {
		return errors.New("phone number must be digits only and at least 6 characters")
	}
	return nil
}

// ValidateContactID accepts a phone number with or without @c.us, or any
// other fully qualified id.
func ValidateContactID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("contact id cannot be empty")
	}
	if strings.HasSuffix(id, "@c.us") {
		return ValidatePhone(strings.TrimSuffix(id, "@c.us"))
	}
	if strings.Contains(id, "@") {
		return validateQualified(id)
	}
	return ValidatePhone(id)
}

// ValidateGroupID accepts a numeric group id with or without @g.us.
func ValidateGroupID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("group id cannot be empty")
	}
	if strings.Contains(id, "@") {
		if !strings.HasSuffix(id, "@g.us") {
			return errors.New("group id must end with @g.us")
		}
		id = strings.TrimSuffix(id, "@g.us")
	}
	if !groupPattern.MatchString(id) {
		return errors.New("group id must be numeric")
	}
	return nil
}

func validateQualified(id string) error {
	user, server, _ := strings.Cut(id, "@")
	if user == "" || server == "" || strings.ContainsAny(id, " \t") {
		return errors.New("id must look like user@server")
	}
	return nil
}

// ValidateImagePath requires a non-empty path without NUL bytes.
func ValidateImagePath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("imagePath is required")
	}
	if strings.ContainsRune(path, 0) {
		return errors.New("imagePath contains invalid characters")
	}
	return nil
}

package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// personaNameRx allows letters, digits, single spaces, hyphen, underscore
// and apostrophe. Names are matched case-insensitively elsewhere.
var personaNameRx = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 '_-]*$`)

// userIdRx accepts platform snowflake ids and test ids alike.
var userIdRx = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// PersonaName validates a persona name:
// - 1-50 bytes after trimming
// - letters, digits, space, hyphen, underscore, apostrophe
// - no leading space, no consecutive spaces
func PersonaName(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("name is required")
	}
	if len(v) > 50 {
		return fmt.Errorf("name exceeds 50 characters")
	}
	if !personaNameRx.MatchString(v) {
		return fmt.Errorf("name contains invalid characters; allowed letters, digits, space, hyphen, underscore, apostrophe")
	}
	if strings.Contains(v, "  ") {
		return fmt.Errorf("name must not contain consecutive spaces")
	}
	return nil
}

func UserID(v string) error {
	if v == "" {
		return fmt.Errorf("userId is required")
	}
	if !userIdRx.MatchString(v) {
		return fmt.Errorf("userId must match %s", userIdRx.String())
	}
	return nil
}

func NonEmpty(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func MaxLen(field, v string, limit int) error {
	if len(v) > limit {
		return fmt.Errorf("%s exceeds %d characters", field, limit)
	}
	return nil
}

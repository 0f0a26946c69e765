package archive

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidID is returned for identifiers that cannot safely name a file.
var ErrInvalidID = errors.New("invalid identifier")

const (
	maxNameBytes = 255
	// leaves room for the artifact extension
	maxIDBytes = maxNameBytes - 4
)

var (
	illegalChars    = regexp.MustCompile(`[/?<>\\:*|"]`)
	controlChars    = regexp.MustCompile(`[\x00-\x1f\x{80}-\x{9f}]`)
	reservedNames   = regexp.MustCompile(`^\.+$`)
	windowsReserved = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com[0-9]|lpt[0-9])(\..*)?$`)
	windowsTrailing = regexp.MustCompile(`[. ]+$`)
)

// SanitizeName strips everything that could not appear in a single path
// element on common filesystems: separators, reserved characters, control
// characters, dot-only names, Windows device names and trailing dots or
// spaces. The result may be empty.
func SanitizeName(name string) string {
	s := illegalChars.ReplaceAllString(name, "")
	s = controlChars.ReplaceAllString(s, "")
	s = reservedNames.ReplaceAllString(s, "")
	s = windowsReserved.ReplaceAllString(s, "")
	s = windowsTrailing.ReplaceAllString(s, "")
	return truncate(s, maxNameBytes)
}

// ValidateID rejects identifiers that sanitization would alter, so an id
// such as "../../etc/passwd" never reaches the filesystem.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(id) > maxIDBytes {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidID, maxIDBytes)
	}
	if clean := SanitizeName(id); clean != id {
		return fmt.Errorf("%w: %q is not a safe file name", ErrInvalidID, id)
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

package sink

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRe allows alphanumeric + underscores, starting with a letter or
// underscore.
var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const maxIdentifierLen = 128

// validateIdentifier checks that name is a safe SQL identifier.
func validateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("name must be at most %d characters", maxIdentifierLen)
	}
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("name must match [a-zA-Z_][a-zA-Z0-9_]*")
	}
	return nil
}

// quoteIdent wraps a SQL identifier in double quotes, escaping embedded
// double quotes by doubling them.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral wraps a string value in single quotes, escaping embedded
// single quotes by doubling them.
func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// sanitizeName turns an arbitrary script or account name into a valid SQL
// identifier: non-identifier runs collapse to underscores.
var badIdentChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

func sanitizeName(name string) string {
	s := badIdentChars.ReplaceAllString(name, "_")
	s = strings.Trim(s, "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "t_" + s
	}
	if len(s) > maxIdentifierLen {
		s = s[:maxIdentifierLen]
	}
	return s
}

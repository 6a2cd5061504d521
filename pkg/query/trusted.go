package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Everything the export engine concatenates into SQL or tool command text
// passes through this file. Identifiers are checked against a conservative
// grammar; string values are quoted as SQL literals. Static WHERE predicates
// are the one exception: they come from the operator's project file and are
// used verbatim.

var (
	ErrUntrustedIdentifier = errors.New("identifier is not trusted")
	ErrUntrustedCredential = errors.New("credential contains characters that are unsafe in command text")
)

var (
	plainIdent  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$#]*$`)
	quotedIdent = regexp.MustCompile("^(\"[^\"]+\"|`[^`]+`)$")
)

const maxIdentLen = 128

// CheckIdent validates a single (unqualified) identifier.
func CheckIdent(name string) error {
	if name == "" || len(name) > maxIdentLen {
		return fmt.Errorf("%w: %q", ErrUntrustedIdentifier, name)
	}
	if plainIdent.MatchString(name) || quotedIdent.MatchString(name) {
		return nil
	}

	return fmt.Errorf("%w: %q", ErrUntrustedIdentifier, name)
}

// CheckQualified validates a schema-qualified name such as SALES.ORDERS.
func CheckQualified(name string) error {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return fmt.Errorf("%w: %q", ErrUntrustedIdentifier, name)
	}
	for _, p := range parts {
		if err := CheckIdent(p); err != nil {
			return err
		}
	}

	return nil
}

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// CheckCredential rejects values that would break out of a generated command
// line, command file or quoted connect string: whitespace, control
// characters and double quotes.
func CheckCredential(field, value string) error {
	for _, r := range value {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '"' {
			return fmt.Errorf("%w: %s", ErrUntrustedCredential, field)
		}
	}

	return nil
}

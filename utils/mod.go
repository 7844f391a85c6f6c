package utils

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"pokezero/meta"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ConfigurationError reports a name that cannot be used for a player or manager.
type ConfigurationError struct {
	Name   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid name %q: %s", e.Name, e.Reason)
}

// ValidateName checks that a name is alphanumeric and short enough to be used in a socket path.
func ValidateName(name string) error {
	if name == "" {
		return &ConfigurationError{Name: name, Reason: "name must not be empty"}
	}
	if len(name) > meta.MAX_NAME_LENGTH {
		return &ConfigurationError{Name: name, Reason: fmt.Sprintf("name has max length %d", meta.MAX_NAME_LENGTH)}
	}
	for _, c := range name {
		if c > unicode.MaxASCII || !(unicode.IsLetter(c) || unicode.IsDigit(c)) {
			return &ConfigurationError{Name: name, Reason: "name must be alphanumeric"}
		}
	}
	return nil
}

// ToID folds a display name into the canonical id used by the rules engine:
// accents stripped, lowercased, everything but [a-z0-9] removed. "Flabébé" becomes "flabebe".
func ToID(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, c := range strings.ToLower(folded) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// SocketPath returns a fresh socket path for name in meta.SOCKET_DIR. The random suffix keeps
// concurrent battles from colliding on the same name.
func SocketPath(name string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:meta.SOCKET_RAND_LEN-1]
	return filepath.Join(meta.SOCKET_DIR, name+"."+suffix)
}

func FindIndex[T comparable](slice []T, item T) int {
	for i, v := range slice {
		if v == item {
			return i
		}
	}
	return -1
}

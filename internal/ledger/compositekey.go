package ledger

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// CompositeKeySeparator delimits composite key components. It is reserved:
// primary keys and key components may not contain it.
const CompositeKeySeparator = "\x1f"

var ErrInvalidKeyComponent = errors.New("ledger: invalid composite key component")

// CreateCompositeKey encodes objectType and attributes as
// objectType SEP attr1 SEP ... attrN SEP.
func CreateCompositeKey(objectType string, attributes []string) (string, error) {
	if err := ValidateKeyComponent(objectType); err != nil {
		return "", err
	}
	if objectType == "" {
		return "", fmt.Errorf("%w: empty object type", ErrInvalidKeyComponent)
	}
	var b strings.Builder
	b.WriteString(objectType)
	b.WriteString(CompositeKeySeparator)
	for _, attr := range attributes {
		if err := ValidateKeyComponent(attr); err != nil {
			return "", err
		}
		b.WriteString(attr)
		b.WriteString(CompositeKeySeparator)
	}
	return b.String(), nil
}

// SplitCompositeKey decodes a key produced by CreateCompositeKey.
func SplitCompositeKey(key string) (string, []string, error) {
	if !IsCompositeKey(key) || !strings.HasSuffix(key, CompositeKeySeparator) {
		return "", nil, fmt.Errorf("%w: %q is not a composite key", ErrInvalidKeyComponent, key)
	}
	parts := strings.Split(strings.TrimSuffix(key, CompositeKeySeparator), CompositeKeySeparator)
	return parts[0], parts[1:], nil
}

// IsCompositeKey reports whether key carries the reserved separator.
func IsCompositeKey(key string) bool {
	return strings.Contains(key, CompositeKeySeparator)
}

// ValidateKeyComponent rejects invalid UTF-8 and the reserved separator.
func ValidateKeyComponent(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %q is not valid utf-8", ErrInvalidKeyComponent, s)
	}
	if strings.Contains(s, CompositeKeySeparator) {
		return fmt.Errorf("%w: %q contains the reserved separator", ErrInvalidKeyComponent, s)
	}
	return nil
}

// prefixRange returns the scan bounds covering every key starting with prefix.
func prefixRange(prefix string) (string, string) {
	return prefix, prefix + string(utf8.MaxRune)
}

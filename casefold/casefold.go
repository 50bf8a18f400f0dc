// Package casefold implements RFC 1459 case folding for IRC identifiers.
// IRC servers treat the characters []\~ as the upper-case forms of {}|^,
// so two nicknames differing only in those characters name the same user.
// Every identity key stored or compared by voiced goes through Fold.
package casefold

// Fold returns the RFC 1459 lower-case form of s.
func Fold(s string) string {
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		switch c := b[i]; {
		case c >= 'A' && c <= 'Z':
			b[i] = c + ('a' - 'A')
		case c == '[':
			b[i] = '{'
		case c == ']':
			b[i] = '}'
		case c == '\\':
			b[i] = '|'
		case c == '~':
			b[i] = '^'
		}
	}
	return string(b)
}

// Equal reports whether a and b name the same identity under RFC 1459
// case folding.
func Equal(a, b string) bool {
	return Fold(a) == Fold(b)
}

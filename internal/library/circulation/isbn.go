package circulation

import "strings"

// SanitizeISBN drops everything but digits and the X check character.
func SanitizeISBN(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteByte('X')
		}
	}
	return b.String()
}

// ValidISBN checks the check digit of a sanitised ISBN-10 or ISBN-13.
func ValidISBN(isbn string) bool {
	switch len(isbn) {
	case 10:
		sum := 0
		for i := 0; i < 10; i++ {
			c := isbn[i]
			var v int
			switch {
			case c == 'X' && i == 9:
				v = 10
			case c >= '0' && c <= '9':
				v = int(c - '0')
			default:
				return false
			}
			sum += (10 - i) * v
		}
		return sum%11 == 0
	case 13:
		sum := 0
		for i := 0; i < 13; i++ {
			c := isbn[i]
			if c < '0' || c > '9' {
				return false
			}
			w := 1
			if i%2 == 1 {
				w = 3
			}
			sum += w * int(c-'0')
		}
		return sum%10 == 0
	default:
		return false
	}
}

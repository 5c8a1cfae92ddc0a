package card

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// ValidNumber reports whether s is a well-formed card number: 13 to 19 digits
// passing the Luhn checksum.
func ValidNumber(s string) bool {
	s = strings.ReplaceAll(s, " ", "")
	if len(s) < 13 || len(s) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// GenerateNumber produces a random 16-digit Luhn-valid number with the given
// issuer prefix.
func GenerateNumber(prefix string) (string, error) {
	const length = 16
	if len(prefix) >= length {
		return "", fmt.Errorf("card: prefix %q too long", prefix)
	}
	digits := make([]byte, length)
	copy(digits, prefix)
	for i := len(prefix); i < length-1; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	digits[length-1] = '0' + checkDigit(string(digits[:length-1]))
	return string(digits), nil
}

// checkDigit computes the Luhn check digit for a partial number.
func checkDigit(partial string) byte {
	sum := 0
	double := true
	for i := len(partial) - 1; i >= 0; i-- {
		d := int(partial[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return byte((10 - sum%10) % 10)
}

// Brand guesses the card scheme from the number prefix.
func Brand(number string) string {
	switch {
	case strings.HasPrefix(number, "4"):
		return "visa"
	case strings.HasPrefix(number, "5"):
		return "mastercard"
	case strings.HasPrefix(number, "9"):
		return "troy"
	default:
		return "card"
	}
}

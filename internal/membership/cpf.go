// internal/membership/cpf.go
package membership

import "strings"

// CPFVerifier validates Brazilian CPF numbers: eleven digits, the last two
// being check digits over the first nine and ten.
type CPFVerifier struct{}

func (CPFVerifier) Valid(cpf string) bool {
	if len(cpf) != 11 {
		return false
	}
	digits := make([]int, 11)
	for i, c := range cpf {
		if c < '0' || c > '9' {
			return false
		}
		digits[i] = int(c - '0')
	}
	// Repeated digits pass the checksum but are never issued.
	if strings.Count(cpf, cpf[:1]) == 11 {
		return false
	}
	return checkDigit(digits[:9]) == digits[9] && checkDigit(digits[:10]) == digits[10]
}

func checkDigit(digits []int) int {
	sum := 0
	weight := len(digits) + 1
	for _, d := range digits {
		sum += d * weight
		weight--
	}
	r := sum * 10 % 11
	if r == 10 {
		return 0
	}
	return r
}

// digitsOnly drops the punctuation of a formatted id such as 529.982.247-25.
func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		if r == '.' || r == '-' || r == ' ' {
			return -1
		}
		return r
	}, s)
}

// Package security rates user-chosen PINs.
//
// The rating is advisory: any PIN that passes auth.ValidatePIN is accepted,
// the CLI only prints the warnings.
package security

import "strconv"

// PINStrength represents the strength level of a PIN.
type PINStrength int

const (
	// PINWeak indicates a PIN found in guessing lists or built from a pattern.
	PINWeak PINStrength = iota
	// PINFair indicates a patternless 4-5 digit PIN.
	PINFair
	// PINGood indicates a patternless 6 digit PIN.
	PINGood
)

// String returns a human-readable representation of the PIN strength.
func (s PINStrength) String() string {
	switch s {
	case PINWeak:
		return "Weak"
	case PINFair:
		return "Fair"
	case PINGood:
		return "Good"
	default:
		return "Unknown"
	}
}

// PINReport is the result of CheckPIN.
type PINReport struct {
	Strength PINStrength
	Warnings []string
}

// commonPINs are the most frequent choices in published PIN datasets.
var commonPINs = map[string]bool{
	"1234": true, "1111": true, "0000": true, "1212": true, "7777": true,
	"1004": true, "2000": true, "4444": true, "2222": true, "6969": true,
	"9999": true, "3333": true, "5555": true, "6666": true, "1122": true,
	"1313": true, "8888": true, "4321": true, "2001": true, "1010": true,
	"123456": true, "654321": true, "111111": true, "000000": true,
	"123123": true, "666666": true, "121212": true, "112233": true,
	"159753": true, "999999": true, "777777": true, "555555": true,
}

// CheckPIN rates a PIN. It expects a string of ASCII digits.
func CheckPIN(pin string) PINReport {
	var r PINReport

	switch {
	case commonPINs[pin]:
		r.Warnings = append(r.Warnings, "PIN is one of the most commonly used PINs")
	case repeatedDigit(pin):
		r.Warnings = append(r.Warnings, "PIN repeats a single digit")
	case sequential(pin):
		r.Warnings = append(r.Warnings, "PIN is a run of consecutive digits")
	case repeatedBlock(pin):
		r.Warnings = append(r.Warnings, "PIN repeats a short block of digits")
	case looksLikeYear(pin):
		r.Warnings = append(r.Warnings, "PIN looks like a year")
	}

	switch {
	case len(r.Warnings) > 0:
		r.Strength = PINWeak
	case len(pin) >= 6:
		r.Strength = PINGood
	default:
		r.Strength = PINFair
		r.Warnings = append(r.Warnings, "A 6 digit PIN is harder to guess")
	}
	return r
}

func repeatedDigit(pin string) bool {
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			return false
		}
	}
	return len(pin) > 0
}

// sequential reports ascending or descending runs like 3456 or 9876.
func sequential(pin string) bool {
	if len(pin) < 2 {
		return false
	}
	step := int(pin[1]) - int(pin[0])
	if step != 1 && step != -1 {
		return false
	}
	for i := 2; i < len(pin); i++ {
		if int(pin[i])-int(pin[i-1]) != step {
			return false
		}
	}
	return true
}

// repeatedBlock reports PINs like 1212, 123123 or 454545.
func repeatedBlock(pin string) bool {
	for size := 1; size <= len(pin)/2; size++ {
		if len(pin)%size != 0 {
			continue
		}
		match := true
		for i := size; i < len(pin); i++ {
			if pin[i] != pin[i-size] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func looksLikeYear(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	year, err := strconv.Atoi(pin)
	if err != nil {
		return false
	}
	return year >= 1940 && year <= 2039
}

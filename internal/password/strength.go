package password

import (
	"crypto/rand"
	"math/big"
	"unicode"
)

// Character classes for generated passwords.
const (
	upperChars   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerChars   = "abcdefghijkmnpqrstuvwxyz"
	digitChars   = "23456789"
	specialChars = "!@#$%^&*()-_=+[]{}"
)

// DefaultGeneratedLength is the length of generated passwords when the caller
// does not specify one.
const DefaultGeneratedLength = 16

// Strength is an advisory score, not a security gate.
type Strength struct {
	Score       int // 0..4
	Description string
}

var strengthDescriptions = [5]string{"very weak", "weak", "fair", "strong", "very strong"}

// EstimateStrength scores a candidate from length thresholds, character-class
// presence, and character uniqueness.
func (h *Hasher) EstimateStrength(candidate string) Strength {
	if candidate == "" {
		return Strength{Score: 0, Description: strengthDescriptions[0]}
	}

	score := 0
	runes := []rune(candidate)
	if len(runes) >= MinLength {
		score++
	}
	if len(runes) >= 16 {
		score++
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	unique := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		unique[r] = struct{}{}
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	if hasUpper && hasLower && hasDigit && hasSpecial {
		score++
	}
	if float64(len(unique))/float64(len(runes)) >= 0.7 {
		score++
	}

	return Strength{Score: score, Description: strengthDescriptions[score]}
}

// GenerateSecurePassword returns a random password of the given length with at
// least one character from each required class. The first four positions seed
// one character per class and a full shuffle removes any positional pattern.
func (h *Hasher) GenerateSecurePassword(length int) (string, error) {
	if length < 4 {
		length = DefaultGeneratedLength
	}

	classes := []string{upperChars, lowerChars, digitChars, specialChars}
	combined := upperChars + lowerChars + digitChars + specialChars

	out := make([]byte, 0, length)
	for _, class := range classes {
		c, err := randomByte(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := randomByte(combined)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates with crypto/rand.
	for i := len(out) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func randomByte(alphabet string) (byte, error) {
	i, err := randomInt(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

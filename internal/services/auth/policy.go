package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	domain "github.com/kzhama/todoauth/internal/domain/auth"
)

// Policy holds the structural password-strength rules. It applies at
// registration and password change only; login always attempts
// verification regardless of strength.
type Policy struct {
	MinLength      int
	MaxLength      int
	Symbols        string
	MaxRepeats     int // total occurrences allowed per character
	MaxConsecutive int // identical characters allowed in a row
}

func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		MaxLength:      100,
		Symbols:        "~!@#$%^&*()_-+={}[]|\\:;\"'<>,.?/",
		MaxRepeats:     2,
		MaxConsecutive: 2,
	}
}

// Validate runs every rule and reports all failures at once.
func (p Policy) Validate(raw string) error {
	var failures []string

	if n := utf8.RuneCountInString(raw); n < p.MinLength {
		failures = append(failures, fmt.Sprintf("must be at least %d characters", p.MinLength))
	} else if n > p.MaxLength {
		failures = append(failures, fmt.Sprintf("must be at most %d characters", p.MaxLength))
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	counts := map[rune]int{}
	var prev rune
	run, maxRun := 0, 0
	for _, r := range raw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
		if strings.ContainsRune(p.Symbols, r) {
			hasSymbol = true
		}
		counts[r]++
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run > maxRun {
			maxRun = run
		}
	}

	if !hasLower {
		failures = append(failures, "must contain a lowercase letter")
	}
	if !hasUpper {
		failures = append(failures, "must contain an uppercase letter")
	}
	if !hasDigit {
		failures = append(failures, "must contain a digit")
	}
	if !hasSymbol {
		failures = append(failures, fmt.Sprintf("must contain a symbol from %q", p.Symbols))
	}
	if p.MaxRepeats > 0 {
		for r, n := range counts {
			if n > p.MaxRepeats {
				failures = append(failures, fmt.Sprintf("character %q appears %d times, at most %d allowed", r, n, p.MaxRepeats))
				break
			}
		}
	}
	if p.MaxConsecutive > 0 && maxRun > p.MaxConsecutive {
		failures = append(failures, fmt.Sprintf("at most %d identical characters in a row allowed", p.MaxConsecutive))
	}

	if len(failures) > 0 {
		return domain.Validation(failures...)
	}
	return nil
}

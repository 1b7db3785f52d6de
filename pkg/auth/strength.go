package auth

import (
	"unicode"
)

// StrongThreshold is the minimum score for a password to count as strong.
const StrongThreshold = 80

// Strength is the result of scoring a candidate password.
type Strength struct {
	Score    int      `json:"score"`
	Feedback []string `json:"feedback"`
	IsStrong bool     `json:"is_strong"`
}

type strengthCheck struct {
	points   int
	feedback string
	pass     func(p passwordTraits) bool
}

type passwordTraits struct {
	length       int
	hasLower     bool
	hasUpper     bool
	hasDigit     bool
	hasSymbol    bool
	hasTripleRun bool
}

// Checks are independent and additive; feedback is emitted in this order.
var strengthChecks = []strengthCheck{
	{15, "Use at least 8 characters", func(p passwordTraits) bool { return p.length >= 8 }},
	{15, "Use 12 or more characters for extra strength", func(p passwordTraits) bool { return p.length >= 12 }},
	{10, "Add lowercase letters", func(p passwordTraits) bool { return p.hasLower }},
	{15, "Add uppercase letters", func(p passwordTraits) bool { return p.hasUpper }},
	{15, "Add numbers", func(p passwordTraits) bool { return p.hasDigit }},
	{20, "Add special characters", func(p passwordTraits) bool { return p.hasSymbol }},
	{10, "Avoid repeating the same character three times in a row", func(p passwordTraits) bool { return !p.hasTripleRun }},
}

func inspect(password string) passwordTraits {
	var t passwordTraits
	var prev rune
	run := 0
	for _, r := range password {
		t.length++
		switch {
		case unicode.IsLower(r):
			t.hasLower = true
		case unicode.IsUpper(r):
			t.hasUpper = true
		case unicode.IsDigit(r):
			t.hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			t.hasSymbol = true
		}

		if run > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= 3 {
			t.hasTripleRun = true
		}
		prev = r
	}
	return t
}

// Score rates a password from 0 to 100. It is advisory and does not consult
// the common-password denylist; callers gating registration must also check IsCommon.
func Score(password string) Strength {
	traits := inspect(password)

	s := Strength{Feedback: make([]string, 0)}
	for _, c := range strengthChecks {
		if c.pass(traits) {
			s.Score += c.points
			continue
		}
		s.Feedback = append(s.Feedback, c.feedback)
	}

	if s.Score > 100 {
		s.Score = 100
	}
	s.IsStrong = s.Score >= StrongThreshold
	return s
}

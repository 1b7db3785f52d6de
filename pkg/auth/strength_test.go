package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_StrongPassword(t *testing.T) {
	s := Score("Str0ng!Pass")

	assert.GreaterOrEqual(t, s.Score, 80)
	assert.True(t, s.IsStrong)
	assert.Equal(t, []string{"Use 12 or more characters for extra strength"}, s.Feedback)
}

func TestScore_CommonPasswordStillScored(t *testing.T) {
	s := Score("password")

	assert.Less(t, s.Score, 40)
	assert.False(t, s.IsStrong)
	assert.True(t, IsCommon("password"))
}

func TestScore_Checks(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     int
	}{
		{"empty", "", 10},
		{"lowercase only short", "abc", 20},
		{"eight lowercase", "abcdefgh", 35},
		{"twelve mixed", "abcdefGHIJKL", 65},
		{"all classes long", "Abcdef12345!", 100},
		{"triple run loses points", "Aaaa1234567!", 90},
		{"unicode symbol counts", "Abcdefgh12€", 85},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.password).Score)
		})
	}
}

func TestScore_FeedbackOrder(t *testing.T) {
	s := Score("aaa")

	assert.Equal(t, []string{
		"Use at least 8 characters",
		"Use 12 or more characters for extra strength",
		"Add uppercase letters",
		"Add numbers",
		"Add special characters",
		"Avoid repeating the same character three times in a row",
	}, s.Feedback)
	assert.Equal(t, 10, s.Score)
}

func TestScore_NeverExceedsHundred(t *testing.T) {
	s := Score("Xy9!Xy9!Xy9!Xy9!Xy9!Xy9!")
	assert.Equal(t, 100, s.Score)
	assert.Empty(t, s.Feedback)
}

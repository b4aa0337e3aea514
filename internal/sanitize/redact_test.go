package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlocks(t *testing.T) {
	assert.Equal(t, "", Blocks(0))
	assert.Equal(t, "", Blocks(-3))
	assert.Equal(t, "███", Blocks(3))
}

func TestRedactCandidates(t *testing.T) {
	text := "a 12 b 345 c"
	cands := []Candidate{
		{Start: 2, End: 4, Value: "12"},
		{Start: 7, End: 10, Value: "345"},
	}
	assert.Equal(t, "a ██ b ███ c", redactCandidates(text, cands, 0))
	assert.Equal(t, "a █████ b █████ c", redactCandidates(text, cands, 5))
	assert.Equal(t, text, redactCandidates(text, nil, 0))
}

func TestRedactWord(t *testing.T) {
	tests := []struct {
		name, text, word, want string
	}{
		{"case insensitive", "John met JOHN and john", "john", "████ met ████ and ████"},
		{"whole word only", "Johnson met John", "John", "Johnson met ████"},
		{"full name", "ask John Smith today", "John Smith", "ask ██████████ today"},
		{"whitespace run", "ask John  Smith today", "John Smith", "ask ███████████ today"},
		{"non ascii edge", "Hola José.", "José", "Hola ████."},
		{"non ascii prefix of longer word", "Zoë met Zoëlle", "Zoë", "███ met Zoëlle"},
		{"non ascii suffix of longer word", "Émile and Bémile", "Émile", "█████ and Bémile"},
		{"digits glue", "John2 and John", "John", "John2 and ████"},
		{"metacharacters", "call A.J. now", "A.J.", "call ████ now"},
		{"empty word", "unchanged", "", "unchanged"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, redactWord(tt.text, tt.word))
		})
	}
}

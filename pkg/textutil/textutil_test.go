package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "musica", Fold("Música"))
	assert.Equal(t, "nao sei", Fold("NÃO sei"))
	assert.Equal(t, "coracao", Fold("coração"))
}

func TestStripPunct(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"jarvis, abra o bloco de notas!", "jarvis abra o bloco de notas"},
		{"lembre-se disso.", "lembre-se disso"},
		{"Racionais MC's", "Racionais MC's"},
		{"  o que eu gosto?? ", "o que eu gosto"},
		{"- ok -", "ok"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StripPunct(tt.in), tt.in)
	}
}

func TestCollapseRepeats(t *testing.T) {
	assert.Equal(t, "sim", CollapseRepeats("siiiim"))
	assert.Equal(t, "a", CollapseRepeats("aaa"))
	assert.Equal(t, "carro", CollapseRepeats("carro"))
	assert.Equal(t, "2000", CollapseRepeats("2000"))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("jarvis", "jarvis"), 0.0001)
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 0.0001)
	assert.GreaterOrEqual(t, Similarity("javis", "jarvis"), 0.8)
	assert.Less(t, Similarity("abrir", "jarvis"), 0.8)
}

func TestClosest(t *testing.T) {
	candidates := []string{"Coldplay", "Anitta", "Anti Da Menace"}

	got, score, ok := Closest("coldpley", candidates, 0.4)
	assert.True(t, ok)
	assert.Equal(t, "Coldplay", got)
	assert.Greater(t, score, 0.75)

	_, _, ok = Closest("zzzz", candidates, 0.4)
	assert.False(t, ok)
}

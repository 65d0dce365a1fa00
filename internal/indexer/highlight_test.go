package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHighlightPicksMatchingSentences(t *testing.T) {
	content := "Photosynthesis converts light into energy. Water is split in the process. " +
		"Respiration is the reverse reaction. The cycle repeats daily."

	got := Highlight(content, "photosynthesis")
	assert.Equal(t, []string{"Photosynthesis converts light into energy."}, got)
}

func TestHighlightIsCaseInsensitive(t *testing.T) {
	got := Highlight("The KREBS cycle produces ATP. Nothing else here.", "krebs")
	assert.Equal(t, []string{"The KREBS cycle produces ATP."}, got)
}

func TestHighlightCapsAtThree(t *testing.T) {
	content := "Energy one. Energy two. Energy three. Energy four. Energy five."
	got := Highlight(content, "energy")
	assert.Len(t, got, 3)
}

func TestHighlightIgnoresShortWords(t *testing.T) {
	// Words of length <= 2 never match, so "is" and "an" contribute nothing.
	got := Highlight("This is an apple. Oranges are different.", "is an")
	assert.Empty(t, got)
}

func TestHighlightNoMatch(t *testing.T) {
	got := Highlight("Nothing relevant here at all.", "quantum")
	assert.Empty(t, got)
}

func TestHighlightMultiWordQuery(t *testing.T) {
	content := "Mitochondria produce ATP. Chloroplasts capture light. Ribosomes build proteins."
	got := Highlight(content, "light proteins")
	assert.Equal(t, []string{
		"Chloroplasts capture light.",
		"Ribosomes build proteins.",
	}, got)
}

package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "stanbol.enhancer.nlp.pos", POSAnnotation.Key)
	assert.Equal(t, "stanbol.enhancer.nlp.phrase", PhraseAnnotation.Key)
	assert.Equal(t, "stanbol.enhancer.nlp.sentiment", SentimentAnnotation.Key)
}

func TestAnnotationsOrdering(t *testing.T) {
	var s Annotations

	require.NoError(t, Add(&s, POSAnnotation, Value[PosTag]{Value: PosTag{Tag: "VB"}, Probability: UnknownProbability}))
	require.NoError(t, Add(&s, POSAnnotation, Value[PosTag]{Value: PosTag{Tag: "NN", Categories: []LexicalCategory{Noun}}, Probability: 0.9}))
	require.NoError(t, Add(&s, POSAnnotation, Value[PosTag]{Value: PosTag{Tag: "JJ"}, Probability: 0.3}))

	best, ok := Get(&s, POSAnnotation)
	require.True(t, ok)
	assert.Equal(t, "NN", best.Value.Tag)
	assert.True(t, best.Value.HasCategory(Noun))

	all := GetAll(&s, POSAnnotation)
	tags := make([]string, 0, len(all))
	for _, v := range all {
		tags = append(tags, v.Value.Tag)
	}
	assert.Equal(t, []string{"NN", "JJ", "VB"}, tags)
}

func TestAnnotationsSeparateKeys(t *testing.T) {
	var s Annotations

	require.NoError(t, Add(&s, SentimentAnnotation, Value[SentimentTag]{Value: SentimentTag{Polarity: -0.5}, Probability: 1}))
	require.NoError(t, Add(&s, PhraseAnnotation, Value[PhraseTag]{Value: PhraseTag{Tag: "NP", Category: Noun}, Probability: 0.8}))

	_, ok := Get(&s, POSAnnotation)
	assert.False(t, ok)

	sent, ok := Get(&s, SentimentAnnotation)
	require.True(t, ok)
	assert.True(t, sent.Value.Negative())
	assert.False(t, sent.Value.Positive())

	assert.Equal(t, []string{KeyPhrase, KeySentiment}, s.Keys())
}

func TestAddRejectsBadProbability(t *testing.T) {
	var s Annotations
	err := Add(&s, POSAnnotation, Value[PosTag]{Value: PosTag{Tag: "NN"}, Probability: 1.5})
	assert.ErrorIs(t, err, ErrInvalidProbability)
	assert.Empty(t, s.Keys())
}

// Package nlp declares the annotation keys NLP components use to attach
// typed values to analysed text spans.
package nlp

const (
	KeyPOS       = "stanbol.enhancer.nlp.pos"
	KeyPhrase    = "stanbol.enhancer.nlp.phrase"
	KeySentiment = "stanbol.enhancer.nlp.sentiment"
)

// Annotation binds a string key to the value type stored under it.
type Annotation[T any] struct {
	Key string
}

var (
	// POSAnnotation is added by POS taggers to tokens.
	POSAnnotation = Annotation[PosTag]{Key: KeyPOS}
	// PhraseAnnotation is added by chunkers to groups of one or more tokens.
	PhraseAnnotation = Annotation[PhraseTag]{Key: KeyPhrase}
	// SentimentAnnotation is added to tokens carrying a positive or negative sentiment.
	SentimentAnnotation = Annotation[SentimentTag]{Key: KeySentiment}
)

// LexicalCategory is a coarse word class.
type LexicalCategory string

const (
	Noun         LexicalCategory = "Noun"
	Verb         LexicalCategory = "Verb"
	Adjective    LexicalCategory = "Adjective"
	Adverb       LexicalCategory = "Adverb"
	Pronoun      LexicalCategory = "PronounOrDeterminer"
	Adposition   LexicalCategory = "Adposition"
	Conjunction  LexicalCategory = "Conjuction"
	Interjection LexicalCategory = "Interjection"
	Punctuation  LexicalCategory = "Punctuation"
	Residual     LexicalCategory = "Residual"
)

// PosTag is a part-of-speech tag as emitted by a tagger, optionally mapped
// to lexical categories.
type PosTag struct {
	Tag        string            `json:"tag"`
	Categories []LexicalCategory `json:"categories,omitempty"`
}

// HasCategory reports whether c is one of the tag's categories.
func (t PosTag) HasCategory(c LexicalCategory) bool {
	for _, have := range t.Categories {
		if have == c {
			return true
		}
	}
	return false
}

// PhraseTag names a chunk type such as "NP".
type PhraseTag struct {
	Tag      string          `json:"tag"`
	Category LexicalCategory `json:"category,omitempty"`
}

// SentimentTag carries a polarity in [-1, 1].
type SentimentTag struct {
	Polarity float64 `json:"polarity"`
}

func (t SentimentTag) Positive() bool { return t.Polarity > 0 }
func (t SentimentTag) Negative() bool { return t.Polarity < 0 }

package ml

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// tokenPattern matches runs of two or more word characters.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Tokenize lower-cases doc and splits it into word tokens of length >= 2.
func Tokenize(doc string) []string {
	return tokenPattern.FindAllString(strings.ToLower(doc), -1)
}

// TfidfVectorizer turns documents into L2-normalised TF-IDF rows.
//
// MaxDF excludes terms that occur in too many training documents: a value in
// (0, 1] is a proportion of documents, a value above 1 an absolute count.
type TfidfVectorizer struct {
	MaxDF float64

	vocabulary map[string]int
	terms      []string
	idf        []float64
}

// NewTfidfVectorizer returns a vectorizer with the given document-frequency
// ceiling.
func NewTfidfVectorizer(maxDF float64) *TfidfVectorizer {
	return &TfidfVectorizer{MaxDF: maxDF}
}

// Fit learns the vocabulary and smoothed idf weights from docs.
func (v *TfidfVectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return fmt.Errorf("tfidf: fit: %w: no documents", ErrEmptyVocabulary)
	}

	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range Tokenize(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	n := float64(len(docs))
	maxCount := v.MaxDF
	if maxCount <= 0 {
		maxCount = n
	} else if maxCount <= 1 {
		maxCount *= n
	}

	terms := make([]string, 0, len(df))
	for term, count := range df {
		if float64(count) <= maxCount {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return fmt.Errorf("tfidf: fit: %w (max_df=%.2f, %d documents)", ErrEmptyVocabulary, v.MaxDF, len(docs))
	}
	sort.Strings(terms)

	v.terms = terms
	v.vocabulary = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for i, term := range terms {
		v.vocabulary[term] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	return nil
}

// Transform maps docs onto the fitted vocabulary. Terms never seen during Fit
// are ignored.
func (v *TfidfVectorizer) Transform(docs []string) (*CSR, error) {
	if v.vocabulary == nil {
		return nil, fmt.Errorf("tfidf: transform: %w", ErrNotFitted)
	}

	b := newCSRBuilder(len(v.terms), len(docs))
	for _, doc := range docs {
		counts := make(map[int]float64)
		for _, tok := range Tokenize(doc) {
			if j, ok := v.vocabulary[tok]; ok {
				counts[j]++
			}
		}

		idx := make([]int, 0, len(counts))
		for j := range counts {
			idx = append(idx, j)
		}
		sort.Ints(idx)

		vals := make([]float64, len(idx))
		var norm float64
		for k, j := range idx {
			w := counts[j] * v.idf[j]
			vals[k] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for k := range vals {
				vals[k] /= norm
			}
		}
		b.appendRow(idx, vals)
	}
	return b.build(), nil
}

// FitTransform is Fit followed by Transform on the same documents.
func (v *TfidfVectorizer) FitTransform(docs []string) (*CSR, error) {
	if err := v.Fit(docs); err != nil {
		return nil, err
	}
	return v.Transform(docs)
}

// Vocabulary returns the fitted terms in column order.
func (v *TfidfVectorizer) Vocabulary() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

package evaluation

import (
	"math"
	"strings"
	"unicode"
)

// Similarity returns the cosine similarity of the lower-cased word frequency
// vectors of a and b, in [0, 1]. Two empty texts are identical.
func Similarity(a, b string) float64 {
	va, vb := termFrequencies(a), termFrequencies(b)
	if len(va) == 0 && len(vb) == 0 {
		return 1
	}
	if len(va) == 0 || len(vb) == 0 {
		return 0
	}

	var dot, na, nb float64
	for term, x := range va {
		na += x * x
		if y, ok := vb[term]; ok {
			dot += x * y
		}
	}
	for _, y := range vb {
		nb += y * y
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim > 1 {
		sim = 1
	}
	return sim
}

func termFrequencies(s string) map[string]float64 {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
	})
	tf := make(map[string]float64, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".")
		if w == "" {
			continue
		}
		tf[w]++
	}
	return tf
}

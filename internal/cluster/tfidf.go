package cluster

import (
	"math"
	"regexp"
	"strings"
)

// sparseVec maps term index to weight. Vectors produced by tfidfVectors are
// L2-normalized, so a dot product is a cosine similarity.
type sparseVec map[int]float64

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// tfidfVectors builds unigram+bigram TF-IDF vectors over docs. Terms present
// in more than maxDF of documents (relative) or fewer than minDF documents
// (absolute) are dropped. Returns nil when filtering leaves no vocabulary.
func tfidfVectors(docs []string, maxDF float64, minDF int) []sparseVec {
	n := len(docs)
	if n == 0 {
		return nil
	}
	if n < 2*minDF {
		minDF = 1
	}

	termDocs := make([]map[string]int, n)
	df := make(map[string]int)
	for i, doc := range docs {
		counts := termCounts(doc)
		termDocs[i] = counts
		for term := range counts {
			df[term]++
		}
	}

	maxDocs := int(maxDF * float64(n))
	vocab := make(map[string]int)
	for term, d := range df {
		if d < minDF || d > maxDocs {
			continue
		}
		vocab[term] = len(vocab)
	}
	if len(vocab) == 0 {
		return nil
	}

	idf := make([]float64, len(vocab))
	for term, idx := range vocab {
		idf[idx] = math.Log(float64(1+n)/float64(1+df[term])) + 1
	}

	vecs := make([]sparseVec, n)
	for i, counts := range termDocs {
		vec := make(sparseVec)
		for term, tf := range counts {
			idx, ok := vocab[term]
			if !ok {
				continue
			}
			vec[idx] = float64(tf) * idf[idx]
		}
		vecs[i] = l2Normalize(vec)
	}
	return vecs
}

// termCounts tokenizes one document into unigram and bigram counts with
// stopwords removed.
func termCounts(doc string) map[string]int {
	raw := tokenRe.FindAllString(strings.ToLower(doc), -1)
	tokens := raw[:0]
	for _, t := range raw {
		if !stopwords[t] {
			tokens = append(tokens, t)
		}
	}

	counts := make(map[string]int, len(tokens)*2)
	for i, t := range tokens {
		counts[t]++
		if i+1 < len(tokens) {
			counts[t+" "+tokens[i+1]]++
		}
	}
	return counts
}

func l2Normalize(v sparseVec) sparseVec {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}

func dotSparse(a, b sparseVec) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var s float64
	for i, x := range a {
		s += x * b[i]
	}
	return s
}

var stopwords = func() map[string]bool {
	words := strings.Fields(`
a about above after again against all am an and any are as at be because been
before being below between both but by can did do does doing down during each
few for from further had has have having he her here hers herself him himself
his how i if in into is it its itself just me more most my myself no nor not
now of off on once only or other our ours ourselves out over own s same she
should so some such t than that the their theirs them themselves then there
these they this those through to too under until up very was we were what when
where which while who whom why will with you your yours yourself yourselves
would could also said says say new one two may must might shall`)
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()

package cluster

import (
	"math"
	"testing"
)

func TestTfidfVectorsNormalized(t *testing.T) {
	docs := []string{
		"drone strike reported near the border",
		"border guards report another drone strike",
		"drone strike follow-up from the border town",
	}
	vecs := tfidfVectors(docs, 0.85, 2)
	if vecs == nil {
		t.Fatal("expected vectors, got nil")
	}
	for i, v := range vecs {
		var sum float64
		for _, x := range v {
			sum += x * x
		}
		if norm := math.Sqrt(sum); norm < 0.999 || norm > 1.001 {
			t.Errorf("doc %d norm = %v, want 1", i, norm)
		}
	}
}

func TestTfidfVectorsRelaxesMinDFForTinyCorpora(t *testing.T) {
	// With n=3 < 2*min_df every term would be dropped at min_df=2 unless the
	// floor relaxes to 1.
	docs := []string{"alpha one", "beta two", "gamma three"}
	if vecs := tfidfVectors(docs, 0.85, 2); vecs == nil {
		t.Fatal("tiny corpus produced no vocabulary")
	}
}

func TestTfidfVectorsEmptyVocabulary(t *testing.T) {
	// Pure stopwords leave nothing to index.
	docs := []string{"the and of", "the and of", "the and of", "the and of"}
	if vecs := tfidfVectors(docs, 0.85, 2); vecs != nil {
		t.Errorf("expected nil for empty vocabulary, got %v", vecs)
	}
}

func TestTermCountsBigramsAndStopwords(t *testing.T) {
	counts := termCounts("The drone hit the port")
	if counts["the"] != 0 {
		t.Error("stopword survived tokenization")
	}
	if counts["drone"] != 1 || counts["port"] != 1 {
		t.Errorf("unigram counts wrong: %v", counts)
	}
	if counts["drone hit"] != 1 || counts["hit port"] != 1 {
		t.Errorf("bigram counts wrong: %v", counts)
	}
}

func TestAggloLabelsThreshold(t *testing.T) {
	// Two tight groups on orthogonal axes plus the threshold keeping them
	// apart (cosine distance between groups is 1.0 > 0.35).
	vecs := [][]float64{
		{1, 0}, {0.99, 0.14}, {0.98, 0.2},
		{0, 1}, {0.14, 0.99},
	}
	for i, v := range vecs {
		n := math.Hypot(v[0], v[1])
		vecs[i] = []float64{v[0] / n, v[1] / n}
	}

	labels := aggloLabels(vecs, 0.35)
	if labels[0] != labels[1] || labels[1] != labels[2] {
		t.Errorf("first group split: %v", labels)
	}
	if labels[3] != labels[4] {
		t.Errorf("second group split: %v", labels)
	}
	if labels[0] == labels[3] {
		t.Errorf("orthogonal groups merged: %v", labels)
	}
}

func TestAggloLabelsSingleton(t *testing.T) {
	labels := aggloLabels([][]float64{{1, 0}}, 0.35)
	if len(labels) != 1 || labels[0] != 0 {
		t.Errorf("labels = %v, want [0]", labels)
	}
}

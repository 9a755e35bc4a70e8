package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"osmon/internal/ratelimit"
	"osmon/internal/retry"
)

func init() {
	modelRetry = retry.Config{MaxAttempts: 2, Delay: time.Millisecond, Backoff: false}
}

type fakeGen struct {
	out   string
	err   error
	calls int
}

func (f *fakeGen) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.out, f.err
}

func TestSummarizeUsesModelOutput(t *testing.T) {
	gen := &fakeGen{out: "- a point\n- b point\n- c point\nEntities: Kyiv"}
	s := &Summarizer{gen: gen, budget: ratelimit.NewBudget(10)}

	got := s.summarize(context.Background(), testReps)
	assertShape(t, got)
	if !strings.Contains(got, "Entities: Kyiv") {
		t.Errorf("model output not used:\n%s", got)
	}
}

func TestSummarizeFallsBackOnError(t *testing.T) {
	gen := &fakeGen{err: errors.New("quota exceeded")}
	s := &Summarizer{gen: gen, budget: ratelimit.NewBudget(10)}

	got := s.summarize(context.Background(), testReps)
	assertShape(t, got)
	if !strings.Contains(got, "Strike hits refinery") {
		t.Errorf("fallback should use titles:\n%s", got)
	}
}

func TestSummarizeWithoutGenerator(t *testing.T) {
	s := &Summarizer{budget: ratelimit.NewBudget(10)}
	assertShape(t, s.summarize(context.Background(), testReps))
}

func TestSummarizeRespectsBudget(t *testing.T) {
	gen := &fakeGen{out: "- a\n- b\n- c\nEntities: X"}
	budget := ratelimit.NewBudget(1)
	s := &Summarizer{gen: gen, budget: budget}

	s.summarize(context.Background(), testReps)
	out := s.summarize(context.Background(), testReps)
	assertShape(t, out)
	if gen.calls != 1 {
		t.Errorf("model called %d times, want 1 within budget", gen.calls)
	}
	if !strings.Contains(out, "Strike hits refinery") {
		t.Errorf("cluster past the budget should still get fallback text:\n%s", out)
	}
}

func TestBuildPromptBounded(t *testing.T) {
	var reps []repInput
	for i := 0; i < 50; i++ {
		reps = append(reps, repInput{
			Title: "A fairly long representative title for sizing",
			URL:   "https://example.com/article",
			Text:  strings.Repeat("sentence content ", 200),
		})
	}
	if got := len(buildPrompt(reps)); got > contextBlobCap+200 {
		t.Errorf("prompt length %d exceeds context cap", got)
	}
}

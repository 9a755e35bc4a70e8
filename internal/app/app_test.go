package app

import "testing"

func TestKnownStage(t *testing.T) {
	for _, s := range Stages {
		if !knownStage(s) {
			t.Errorf("stage %q not recognized", s)
		}
	}
	for _, s := range []string{"", "install", "INGEST", "clusterize"} {
		if knownStage(s) {
			t.Errorf("stage %q should not be recognized", s)
		}
	}
}

func TestRunRejectsUnknownStage(t *testing.T) {
	if code := Run("bogus"); code != ExitUnavailable {
		t.Errorf("Run(bogus) = %d, want %d", code, ExitUnavailable)
	}
}

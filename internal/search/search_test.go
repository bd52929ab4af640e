package search

import "testing"

func TestSelectPicksHighestConfidence(t *testing.T) {
	results := []Candidate{
		{SourceURL: "magnet:?a", ConfidenceScore: 70},
		{SourceURL: "magnet:?b", ConfidenceScore: 92},
		{SourceURL: "magnet:?c", ConfidenceScore: 88},
	}
	best, ok, reason := Select(results, 85)
	if !ok {
		t.Fatalf("expected ok, got reason %q", reason)
	}
	if best.SourceURL != "magnet:?b" {
		t.Errorf("selected %q, want magnet:?b", best.SourceURL)
	}
}

func TestSelectRejectsBelowThreshold(t *testing.T) {
	results := []Candidate{{SourceURL: "magnet:?a", ConfidenceScore: 60}}
	_, ok, reason := Select(results, 85)
	if ok {
		t.Fatal("expected rejection below confidence threshold")
	}
	if reason != "confidence below threshold" {
		t.Errorf("reason = %q", reason)
	}
}

func TestSelectRejectsMissingSourceURL(t *testing.T) {
	results := []Candidate{{ConfidenceScore: 99}}
	_, ok, reason := Select(results, 85)
	if ok {
		t.Fatal("expected rejection for missing source URL")
	}
	if reason != "top candidate has no source URL" {
		t.Errorf("reason = %q", reason)
	}
}

func TestSelectRejectsEmptyResults(t *testing.T) {
	_, ok, reason := Select(nil, 85)
	if ok {
		t.Fatal("expected rejection for empty results")
	}
	if reason != "no candidates returned" {
		t.Errorf("reason = %q", reason)
	}
}

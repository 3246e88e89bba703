package utils

import "testing"

func TestSubmissionScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if submissionAcquireScript == nil || submissionReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestCacheHelpersRejectNilClient(t *testing.T) {
	var out struct{}
	if err := CacheGetJSON(nil, nil, "k", &out); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := CacheSetJSON(nil, nil, "k", struct{}{}, 0); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

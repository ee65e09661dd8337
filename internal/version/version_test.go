package version

import "testing"

func TestString(t *testing.T) {
	Version, GitSHA, BuildTime = "1.2.0", "abc123", "2025-06-01"
	t.Cleanup(func() { Version, GitSHA, BuildTime = "dev", "unknown", "unknown" })

	if got, want := String(), "1.2.0 (commit abc123, built 2025-06-01)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

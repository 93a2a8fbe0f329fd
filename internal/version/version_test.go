package version

import "testing"

func TestBuildString(t *testing.T) {
	b := BuildInfo{Version: "1.2.3", Commit: "abc1234", Date: "2026-09-01"}
	want := "version=1.2.3 commit=abc1234 date=2026-09-01"
	if got := b.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestBuildDefaults(t *testing.T) {
	b := Build()
	if b.Version == "" || b.Commit == "" || b.Date == "" {
		t.Errorf("Build() has empty fields: %+v", b)
	}
}

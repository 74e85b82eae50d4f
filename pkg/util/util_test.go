package util

import (
	"slices"
	"strings"
	"testing"
)

func TestExpandPath(t *testing.T) {
	// Paths without a tilde pass through untouched.
	for _, p := range []string{`C:\data`, "relative/path", ""} {
		got, err := ExpandPath(p)
		if err != nil || got != p {
			t.Errorf("ExpandPath(%q) = %q, %v", p, got, err)
		}
	}

	// Tilde forms resolve under the home directory.
	home, err := ExpandPath("~")
	if err != nil || home == "" || strings.HasPrefix(home, "~") {
		t.Errorf("ExpandPath(~) = %q, %v", home, err)
	}
	sub, err := ExpandPath("~/mirror")
	if err != nil || !strings.HasPrefix(sub, home) || !strings.HasSuffix(sub, "mirror") {
		t.Errorf("ExpandPath(~/mirror) = %q, %v", sub, err)
	}

	// ~user is rejected, not misread.
	if _, err := ExpandPath("~bob/data"); err == nil {
		t.Error("expected error for ~user form")
	}
}

func TestInvertMap(t *testing.T) {
	in := map[string]int{"a": 1, "b": 2}
	out := InvertMap(in)
	if len(out) != 2 || out[1] != "a" || out[2] != "b" {
		t.Errorf("InvertMap returned %v", out)
	}
}

func TestMergeUniquePreservesOrder(t *testing.T) {
	got := MergeUnique([]string{"persisted", "both"}, []string{"both", "cli"}, nil)
	want := []string{"persisted", "both", "cli"}
	if !slices.Equal(got, want) {
		t.Errorf("MergeUnique = %v, want %v", got, want)
	}
	if out := MergeUnique(); out == nil || len(out) != 0 {
		t.Errorf("MergeUnique() = %v, want empty non-nil", out)
	}
}

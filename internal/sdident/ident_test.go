package sdident

import "testing"

func TestCanonicalizeBasic(t *testing.T) {
	cases := map[string]string{
		"Birth Rate":   "birth_rate",
		"birth__rate":  "birth_rate",
		"_birth_rate_": "birth_rate",
		"INFECTIOUS":   "infectious",
		"":             "",
		"a b  c":       "a_b_c",
	}
	for in, want := range cases {
		got := Canonicalize(in)
		if got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{"Birth Rate", "a·b·c", "  weird___Name  "}
	for _, in := range inputs {
		once := Canonicalize(in)
		twice := Canonicalize(once)
		if once != twice {
			t.Errorf("Canonicalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestModuleSepPreserved(t *testing.T) {
	got := Canonicalize("Parent·Child")
	want := "parent·child"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestJoinModulePath(t *testing.T) {
	got := JoinModulePath(Ident("Parent"), Ident("Child"))
	want := Canonical("parent·child")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

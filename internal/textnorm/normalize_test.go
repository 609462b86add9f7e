package textnorm_test

import (
	"testing"

	"github.com/MrWong99/dialmap/internal/textnorm"
)

func TestNormalize_Basic(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Please Say Your Account Number.", "please say your account number"},
		{"punctuation", "press 1, for sales; press 2 for support!", "press one for sales press two for support"},
		{"fillers", "um, I uh need er some help", "i need some help"},
		{"whitespace", "  hello    there \t world ", "hello there world"},
		{"digit groups", "your code is 25", "your code is two five"},
		{"hyphenated range", "sales hours are 9-5", "sales hours are nine five"},
		{"empty", "", ""},
		{"only fillers", "um uh er", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := textnorm.Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q): want %q, got %q", tc.in, tc.want, got)
			}
		})
	}
}

// TestNormalize_Idempotent verifies Normalize(Normalize(x)) == Normalize(x)
// across a representative sample of transcript noise.
func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Please say your account number.",
		"press 1 for sales, 2 for support",
		"Um, sales hours are 9-5. Goodbye!",
		"THANK YOU FOR CALLING — how can I help?",
		"",
	}

	for _, in := range inputs {
		once := textnorm.Normalize(in)
		twice := textnorm.Normalize(once)
		if once != twice {
			t.Errorf("not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestNormalize_NoisyVariantsCollapse(t *testing.T) {
	t.Parallel()

	a := textnorm.Normalize("Please say your account number.")
	b := textnorm.Normalize("please say your account number")
	if a != b {
		t.Errorf("variants should normalise identically: %q vs %q", a, b)
	}
}

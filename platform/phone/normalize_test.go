package phone

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"ten digits gets country code", "9876543210", "919876543210"},
		{"already prefixed unchanged", "919876543210", "919876543210"},
		{"plus and spaces stripped", "+91 98765 43210", "919876543210"},
		{"trunk zero stripped", "09876543210", "919876543210"},
		{"international double zero stripped", "00919876543210", "919876543210"},
		{"dashes stripped", "98-7654-3210", "919876543210"},
		{"letters stripped", "call 9876543210 now", "919876543210"},
		{"short number still prefixed", "12345", "9112345"},
		{"only junk", "n/a", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"", "9876543210", "09876543210", "+91 98765 43210", "12345", "00919876543210"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestLooksValid(t *testing.T) {
	if !LooksValid("919876543210") {
		t.Error("expected a full Indian mobile number to look valid")
	}
	if LooksValid("9112345") {
		t.Error("expected a short prefixed number to look invalid")
	}
	if LooksValid("") {
		t.Error("expected empty to look invalid")
	}
}

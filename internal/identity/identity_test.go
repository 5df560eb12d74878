package identity

import "testing"

// TestGenerateShape verifies every generated identity has the UUID v4 layout
// with version nibble 4 and a variant nibble in {8,9,a,b}.
func TestGenerateShape(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := Generate()
		s := string(id)

		if len(s) != 36 {
			t.Fatalf("length: got %d, want 36 (%q)", len(s), s)
		}
		if s[14] != '4' {
			t.Fatalf("version nibble: got %q, want '4' (%q)", s[14], s)
		}
		switch s[19] {
		case '8', '9', 'a', 'b':
		default:
			t.Fatalf("variant nibble: got %q (%q)", s[19], s)
		}
		if !Valid(s) {
			t.Fatalf("Valid(%q) = false", s)
		}
	}
}

// TestGenerateUnique checks that a batch of identities contains no repeats.
func TestGenerateUnique(t *testing.T) {
	seen := make(map[SessionIdentity]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := Generate()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate identity after %d draws: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	testCases := []struct {
		in   string
		want bool
	}{
		{"0f8fad5b-d9cb-469f-a165-70867728950e", true},
		{"7c9e6679-7425-40de-944b-e07fc1f90ae7", true},
		{"0F8FAD5B-D9CB-469F-A165-70867728950E", false}, // uppercase
		{"0f8fad5b-d9cb-169f-a165-70867728950e", false}, // version 1
		{"0f8fad5b-d9cb-469f-c165-70867728950e", false}, // variant c
		{"0f8fad5bd9cb469fa16570867728950e", false},     // no dashes
		{"", false},
		{"hello", false},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			if got := Valid(tc.in); got != tc.want {
				t.Errorf("Valid(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestShort(t *testing.T) {
	id := SessionIdentity("0f8fad5b-d9cb-469f-a165-70867728950e")
	if got := id.Short(); got != "0f8fad5b" {
		t.Errorf("Short() = %q, want %q", got, "0f8fad5b")
	}
	if got := SessionIdentity("abc").Short(); got != "abc" {
		t.Errorf("Short() on short id = %q, want %q", got, "abc")
	}
}

func TestNewAssetIDDistinct(t *testing.T) {
	a, b := NewAssetID(), NewAssetID()
	if a == b {
		t.Fatalf("NewAssetID returned the same value twice: %s", a)
	}
}

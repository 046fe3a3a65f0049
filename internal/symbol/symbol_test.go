package symbol

import (
	"errors"
	"testing"
)

func TestNormalize_Valid(t *testing.T) {
	cases := map[string]string{
		"aapl":    "AAPL",
		" msft ":  "MSFT",
		"BRK.B":   "BRK.B",
		"bf-b":    "BF-B",
		"^gspc":   "^GSPC",
		"T":       "T",
		"ab1":     "AB1",
	}
	for in, want := range cases {
		got, err := Normalize(in)
		if err != nil {
			t.Errorf("Normalize(%q) unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalize_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "TOOLONGSYMBOL", "AA PL", "aapl;drop", ".AAPL", "-X"} {
		if _, err := Normalize(in); !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("Normalize(%q) = %v, want ErrInvalidSymbol", in, err)
		}
	}
}

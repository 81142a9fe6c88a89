package core

import "testing"

func TestNumberFormatting(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{utoa(0), "0"},
		{utoa(18446744073709551615), "18446744073709551615"},
		{itoa(-42), "-42"},
		{itoa(7), "7"},
		{hex16(0), "0x0000"},
		{hex16(0xBEEF), "0xBEEF"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("Expected %q, got %q", c.want, c.got)
		}
	}
}

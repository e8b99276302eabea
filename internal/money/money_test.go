package money

import "testing"

func TestFormat(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{50, "0.50"},
		{100, "1.00"},
		{1050, "10.50"},
		{200000, "2000.00"},
		{-700, "-7.00"},
		{-5, "-0.05"},
		{999999, "9999.99"},
	}

	for _, tc := range cases {
		if got := Format(tc.cents); got != tc.want {
			t.Errorf("Format(%d) = %q, want %q", tc.cents, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0.00", 0},
		{"10.50", 1050},
		{"-7.00", -700},
		{"2000", 200000},
		{"0.5", 50},
		{" 1.25 ", 125},
	}

	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "1.2.3", "abc", "1.234", "1."} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", in)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, cents := range []int64{0, 1, 99, 100, -1, -99, 123456, -123456} {
		got, err := Parse(Format(cents))
		if err != nil {
			t.Fatalf("round trip of %d failed: %v", cents, err)
		}
		if got != cents {
			t.Errorf("round trip of %d produced %d", cents, got)
		}
	}
}

package repositories

import "testing"

func TestEscapeLike(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "deadline", want: "deadline"},
		{in: "100%", want: `100\%`},
		{in: "a_b", want: `a\_b`},
		{in: `c:\temp`, want: `c:\\temp`},
		{in: "%_", want: `\%\_`},
	}

	for _, tc := range cases {
		if got := escapeLike(tc.in); got != tc.want {
			t.Fatalf("escapeLike(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

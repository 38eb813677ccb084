package phone

import "testing"

func TestNational(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "0612345678", want: "06 12 34 56 78"},
		{in: "+33 6 12 34 56 78", want: "06 12 34 56 78"},
		{in: "  not a number ", want: "not a number"},
		{in: "", want: ""},
	}

	for _, tc := range cases {
		if got := National(tc.in); got != tc.want {
			t.Errorf("National(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

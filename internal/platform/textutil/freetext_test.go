package textutil

import "testing"

func TestCleanFreeText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "trims", in: "  Ana  ", want: "Ana"},
		{name: "drops scripts", in: "<script>alert(1)</script>Tigre", want: "Tigre"},
		{name: "keeps ampersand", in: "<b>Casa</b> & jardín", want: "Casa & jardín"},
		{name: "truncates on runes", in: "Ñandú Ñandú", max: 5, want: "Ñandú"},
		{name: "no limit", in: "Don Torcuato", max: 0, want: "Don Torcuato"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanFreeText(tc.in, tc.max); got != tc.want {
				t.Fatalf("CleanFreeText(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
		})
	}
}

package helpers

import "testing"

func TestPlainText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "strips tags and scripts", in: `<p>Sunset <strong>hike</strong><script>alert('x')</script></p>`, want: "Sunset hike"},
		{name: "collapses whitespace", in: "  late\n\n  night   swim ", want: "late night swim"},
		{name: "keeps entities readable", in: "fish &amp; chips", want: "fish & chips"},
		{name: "truncates by rune", in: "café crème", max: 4, want: "café"},
		{name: "empty", in: "   ", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PlainText(tc.in, tc.max); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

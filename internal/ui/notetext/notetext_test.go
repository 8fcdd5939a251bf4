package notetext

import "testing"

func TestPlain(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text", in: "  hello  ", want: "hello"},
		{name: "inline markup", in: `<a href="x"><b>Ann</b></a> liked your post`, want: "Ann liked your post"},
		{name: "paragraphs", in: "<p>Hello <b>world</b></p><p>Second</p>", want: "Hello world\nSecond"},
		{name: "line break", in: "one<br>two", want: "one\ntwo"},
		{name: "list", in: "<ul><li>a</li><li>b</li></ul>", want: "• a\n• b"},
		{name: "entities", in: "Tom &amp; Jerry", want: "Tom & Jerry"},
		{name: "script dropped", in: "a<script>alert(1)</script>b", want: "ab"},
		{name: "blank lines collapsed", in: "<p>a</p><p></p><p></p><p>b</p>", want: "a\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plain(tt.in); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLine(t *testing.T) {
	if got := Line("<p>first</p><p>second</p>"); got != "first second" {
		t.Fatalf("expected single line, got %q", got)
	}
}

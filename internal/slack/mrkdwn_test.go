package slack

import "testing"

func TestToMrkdwn(t *testing.T) {
	tests := []struct {
		name string
		md   string
		want string
	}{
		{
			"plain text",
			"hello world",
			"hello world",
		},
		{
			"bold and italic",
			"**bold** and *italic*",
			"*bold* and _italic_",
		},
		{
			"heading",
			"# Zone report\n\nAll clear.",
			"*Zone report*\n\nAll clear.",
		},
		{
			"unordered list",
			"- first\n- second",
			"• first\n• second",
		},
		{
			"ordered list",
			"1. check SOA\n2. check NS",
			"1. check SOA\n2. check NS",
		},
		{
			"link",
			"see [the docs](https://example.com/docs)",
			"see <https://example.com/docs|the docs>",
		},
		{
			"inline code",
			"run `dig +short example.com`",
			"run `dig +short example.com`",
		},
		{
			"fenced code block",
			"```\n$ORIGIN example.com.\n@ IN SOA ns1 admin 1 2 3 4 5\n```",
			"```\n$ORIGIN example.com.\n@ IN SOA ns1 admin 1 2 3 4 5\n```",
		},
		{
			"blockquote",
			"> RFC 1035 says so",
			"> RFC 1035 says so",
		},
		{
			"mixed document",
			"## Findings\n\nThe zone has **two** problems:\n\n- missing `NS` glue\n- low TTL",
			"*Findings*\n\nThe zone has *two* problems:\n\n• missing `NS` glue\n• low TTL",
		},
		{
			"empty input",
			"",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToMrkdwn(tt.md)
			if got != tt.want {
				t.Errorf("ToMrkdwn(%q) =\n%q\nwant\n%q", tt.md, got, tt.want)
			}
		})
	}
}

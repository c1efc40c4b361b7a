package html

import (
	"strings"
	"testing"
)

func TestTextDropsScriptsAndKeepsBlocks(t *testing.T) {
	page := `<html><head><title>Handbook</title><style>p{}</style></head>
<body><h1>Benefits</h1><script>alert(1)</script>
<p>Health   insurance &amp; dental.</p><ul><li>One</li><li>Two</li></ul></body></html>`

	text, err := Text(strings.NewReader(page))
	if err != nil {
		t.Fatalf("Text() error: %v", err)
	}
	want := "Benefits\nHealth insurance & dental.\nOne\nTwo"
	if text != want {
		t.Fatalf("Text() = %q, want %q", text, want)
	}
}

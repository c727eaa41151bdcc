package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextProjection_AnchorsBecomeLinks(t *testing.T) {
	markup := `<html><body>
<a href="/acme/widgets/tree/main/src">src</a>
<p>Some visible paragraph</p>
<a href="/acme/widgets/blob/main/package.json">package.json</a>
</body></html>`

	text := TextProjection(markup)

	assert.Contains(t, text, "[src](/acme/widgets/tree/main/src)")
	assert.Contains(t, text, "[package.json](/acme/widgets/blob/main/package.json)")
	assert.Contains(t, text, "Some visible paragraph")
}

func TestTextProjection_DropsChromeSubtrees(t *testing.T) {
	markup := `<html><body>
<nav><a href="/features">Features</a></nav>
<script>console.log("hi")</script>
<style>.a{color:red}</style>
<a href="/acme/widgets/blob/main/go.mod">go.mod</a>
<footer><a href="/about">About</a></footer>
</body></html>`

	text := TextProjection(markup)

	assert.Contains(t, text, "[go.mod](/acme/widgets/blob/main/go.mod)")
	assert.NotContains(t, text, "Features")
	assert.NotContains(t, text, "console.log")
	assert.NotContains(t, text, "color:red")
	assert.NotContains(t, text, "About")
}

func TestTextProjection_AnchorTextNormalized(t *testing.T) {
	markup := `<a href="/x"><span>  spaced  </span> <b>name</b></a>`
	text := TextProjection(markup)
	assert.Contains(t, text, "[spaced name](/x)")
}

func TestTextProjection_EmptyAndBroken(t *testing.T) {
	assert.Empty(t, strings.TrimSpace(TextProjection("")))
	// Anchors without text or href are dropped rather than emitted empty.
	assert.NotContains(t, TextProjection(`<a href="/x"></a><a>orphan</a>`), "[")
}

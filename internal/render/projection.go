package render

import (
	"strings"

	"golang.org/x/net/html"
)

// chrome-only subtrees are dropped from the projection entirely; their link
// text is exactly the noise the sanitizer would otherwise have to strip.
var excludedTags = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"footer": true,
}

// TextProjection converts markup into a markdown-style text view: anchors
// become [text](href) and other visible text is carried through. This is the
// surface the extraction cascade's last strategy scans for link patterns.
func TextProjection(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if excludedTags[n.Data] {
				return
			}
			if n.Data == "a" {
				text := strings.TrimSpace(nodeText(n))
				href := attrValue(n, "href")
				if text != "" && href != "" {
					sb.WriteString("[" + text + "](" + href + ")\n")
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t + "\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}

// nodeText extracts the concatenated text of a node's subtree.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// attrValue returns the value of the named attribute, or "".
func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

package spider

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"gitspider/internal/logging"
	"gitspider/internal/render"
)

// Entry is one row extracted from a rendered directory listing.
type Entry struct {
	Name  string
	Link  string
	IsDir bool
}

// listingSchema describes one structural query over rendered listing markup.
// The site ships at least two markup variants in the wild, so the extractor
// carries one schema per variant.
type listingSchema struct {
	name  string
	isRow func(n *html.Node) bool
}

// primarySchema matches the react-based file listing: table rows carrying a
// react-directory-row class.
var primarySchema = listingSchema{
	name: "react-directory",
	isRow: func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "tr" &&
			strings.Contains(attrValue(n, "class"), "react-directory-row")
	},
}

// altSchema matches the older grid listing: div rows with role=row and a
// Box-row class.
var altSchema = listingSchema{
	name: "box-row",
	isRow: func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div" &&
			attrValue(n, "role") == "row" &&
			strings.Contains(attrValue(n, "class"), "Box-row")
	},
}

var linkPattern = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// Extractor parses one rendered directory listing with a cascade of
// strategies of decreasing structure: primary schema, alternate schema, then
// a link-pattern scan over the text projection. Yielding zero entries is an
// answer, never an error.
type Extractor struct {
	rules *Ruleset
}

// NewExtractor builds an extractor over the given ruleset.
func NewExtractor(rules *Ruleset) *Extractor {
	return &Extractor{rules: rules}
}

// Extract runs the cascade against a snapshot and returns whatever the first
// producing strategy found.
func (e *Extractor) Extract(snap *render.PageSnapshot) []Entry {
	if snap == nil {
		return nil
	}

	if doc, err := html.Parse(strings.NewReader(snap.HTML)); err == nil {
		if entries := extractStructural(doc, primarySchema); len(entries) > 0 {
			return entries
		}
		if entries := extractStructural(doc, altSchema); len(entries) > 0 {
			logging.WalkerDebug("Primary schema empty for %s, alternate matched", snap.URL)
			return entries
		}
	}

	if entries := e.extractTextLinks(snap.Text); len(entries) > 0 {
		logging.WalkerDebug("Structural schemas empty for %s, text projection matched", snap.URL)
		return entries
	}

	return nil
}

// extractStructural collects {name, link, kind} tuples from every row the
// schema matches.
func extractStructural(doc *html.Node, schema listingSchema) []Entry {
	var entries []Entry
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if schema.isRow(n) {
			if entry, ok := entryFromRow(n); ok {
				entries = append(entries, entry)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return entries
}

// entryFromRow pulls the first usable anchor out of a listing row and infers
// the entry kind from the row's icon or the link shape.
func entryFromRow(row *html.Node) (Entry, bool) {
	var anchor *html.Node
	isDir := false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if anchor == nil && attrValue(n, "href") != "" {
					anchor = n
				}
			case "svg":
				label := strings.ToLower(attrValue(n, "aria-label"))
				class := attrValue(n, "class")
				if strings.Contains(label, "directory") ||
					strings.Contains(class, "octicon-file-directory") ||
					strings.Contains(class, "icon-directory") {
					isDir = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(row)

	if anchor == nil {
		return Entry{}, false
	}

	link := attrValue(anchor, "href")
	name := strings.TrimSpace(nodeText(anchor))
	if name == "" {
		return Entry{}, false
	}

	return Entry{
		Name:  name,
		Link:  link,
		IsDir: isDir || strings.Contains(link, "/tree/"),
	}, true
}

// extractTextLinks is the last-resort strategy: scan the text projection for
// [text](href) patterns. The leading-# filter is best effort; downstream
// validation is what actually keeps non-entry links out of the tree.
func (e *Extractor) extractTextLinks(text string) []Entry {
	var entries []Entry
	for _, match := range linkPattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(match[1])
		href := strings.TrimSpace(match[2])
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		if !e.rules.IsValid(name) {
			continue
		}
		if !strings.Contains(href, "github.com") && !strings.HasPrefix(href, "/") {
			continue
		}
		entries = append(entries, Entry{
			Name:  name,
			Link:  href,
			IsDir: strings.Contains(href, "/tree/"),
		})
	}
	return entries
}

// nodeText extracts normalized text from a node's subtree.
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

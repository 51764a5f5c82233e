package htmlutil

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// GetText concatenates the text under node. Scripts and styles nested below
// node are left out, node itself may be one.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer, "")
	return buffer.String()
}

// GetTextNodes concatenates every text node under the given node, with a space
// between each one so that adjacent block elements do not run together.
func GetTextNodes(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer, " ")
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer, sep string) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		buffer.WriteString(sep)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if isScript(child) {
			continue
		}
		getTextRecursive(child, buffer, sep)
	}
}

func isScript(node *html.Node) bool {
	return node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style")
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CollapseWhitespace replaces every run of whitespace with a single space and
// trims the result.
func CollapseWhitespace(s string) string {
	s = removeNonPrintable(s)
	s = innerWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Text returns the whitespace-collapsed text of every node in the selection.
func Text(sel *goquery.Selection) string {
	var out strings.Builder
	for _, n := range sel.Nodes {
		out.WriteString(GetTextNodes(n))
		out.WriteString(" ")
	}
	return CollapseWhitespace(out.String())
}

// FilterAttr keeps the elements of the selection whose attribute is exactly
// equal to value. Postback names contain `$` and `:` which are awkward to
// quote inside css selectors, so lookups by name go through here.
func FilterAttr(sel *goquery.Selection, attr, value string) *goquery.Selection {
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, ok := s.Attr(attr)
		return ok && v == value
	})
}

type Anchor struct {
	Url  *url.URL
	Name string
}

// GetAnchors resolves the href of every anchor in the selection against base.
// Anchors without a parseable href are skipped.
func GetAnchors(base *url.URL, sel *goquery.Selection) []Anchor {
	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
				break
			}
		}

		link, err := url.Parse(href)
		if err != nil {
			continue
		}
		if base != nil {
			link = base.ResolveReference(link)
		}

		anchors = append(anchors, Anchor{
			Url:  link,
			Name: CollapseWhitespace(GetText(n)),
		})
	}
	return anchors
}

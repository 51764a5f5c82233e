package htmlutil

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, source string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestText(t *testing.T) {
	doc := parse(t, `<div id="a"><p>Hello,</p>
<p>Your request   was
   received.</p><script>var x = 1;</script></div><div id="b">Thanks,<br/>Jane</div>`)

	require.Equal(t, "Hello, Your request was received.", Text(doc.Find("#a")))
	require.Equal(t, "Thanks, Jane", Text(doc.Find("#b")))
	require.Equal(t, "Hello, Your request was received. Thanks, Jane", Text(doc.Find("div")))
	require.Equal(t, "", Text(doc.Find("#missing")))

	// a script read directly keeps its source
	script := doc.Find("#a script")
	require.Equal(t, "var x = 1;", GetText(script.Nodes[0]))
	require.Equal(t, "var x = 1;", Text(script))

	doc = parse(t, `<p>shown<style>p { color: red; }</style></p>`)
	require.Equal(t, "shown", Text(doc.Find("p")))
}

func TestFilterAttr(t *testing.T) {
	doc := parse(t, `<input name="ASPxFormLayout1$txtEmail" value="a" />
<input name="ASPxFormLayout1$txtEmail$State" value="b" />`)

	found := FilterAttr(doc.Find("input"), "name", "ASPxFormLayout1$txtEmail")
	require.Equal(t, 1, found.Length())
	require.Equal(t, "a", found.AttrOr("value", ""))
}

func TestGetAnchors(t *testing.T) {
	doc := parse(t, `<a href="RequestEdit.aspx?rid=101"> R000101-101726 </a><a href="/Login.aspx">Log  In</a>`)
	base, err := url.Parse("https://x.govqa.us/WEBAPP/_rs/(S(abc))/CustomerIssues.aspx")
	if err != nil {
		t.Fatal(err)
	}

	anchors := GetAnchors(base, doc.Find("a"))
	names := []string{}
	links := []string{}
	for _, a := range anchors {
		names = append(names, a.Name)
		links = append(links, a.Url.String())
	}
	diff := cmp.Diff([]string{"R000101-101726", "Log In"}, names)
	if diff != "" {
		t.Fatal(diff)
	}
	diff = cmp.Diff([]string{
		"https://x.govqa.us/WEBAPP/_rs/(S(abc))/RequestEdit.aspx?rid=101",
		"https://x.govqa.us/Login.aspx",
	}, links)
	if diff != "" {
		t.Fatal(diff)
	}
}

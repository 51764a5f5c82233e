package session

import (
	"bytes"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is a fully read and parsed response.
type Page struct {
	// URL is the address of the final response after redirects.
	URL    *url.URL
	Status int
	Header http.Header
	Body   []byte
	Doc    *goquery.Document
}

func newPage(finalUrl *url.URL, status int, header http.Header, body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	return &Page{
		URL:    finalUrl,
		Status: status,
		Header: header,
		Body:   body,
		Doc:    doc,
	}, nil
}

// Source is the raw page body, for pattern matching against inline scripts.
func (p *Page) Source() string {
	return string(p.Body)
}

// Is reports whether the page was served for the given endpoint, ignoring
// case and query string.
func (p *Page) Is(endpoint string) bool {
	return pathIs(p.URL, endpoint)
}

func pathIs(u *url.URL, endpoint string) bool {
	if u == nil {
		return false
	}
	return strings.EqualFold(path.Base(u.Path), endpoint)
}

package session

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentify(t *testing.T) {
	home, err := url.Parse("https://x.govqa.us/WEBAPP/_rs/(S(abc))/CustomerHome.aspx")
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name   string
		source string
		expect string
	}{
		{
			name:   "inline script",
			source: `<html><head><script type="text/javascript">var customerID = '4242';</script></head><body></body></html>`,
			expect: "4242",
		},
		{
			name: "after other scripts",
			source: `<html><body><script>var x = 1;</script>
<script>window.portal = { customerId: "jdoe@example.com" };</script></body></html>`,
			expect: "jdoe@example.com",
		},
		{
			name:   "anonymous",
			source: `<html><body><script>var customerID = 0;</script></body></html>`,
		},
		{
			name:   "only in text",
			source: `<html><body><p>customerID = 4242</p></body></html>`,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			page, err := newPage(home, http.StatusOK, http.Header{}, []byte(test.source))
			if err != nil {
				t.Fatal(err)
			}
			require.Equal(t, test.expect, identify(page))
		})
	}
}

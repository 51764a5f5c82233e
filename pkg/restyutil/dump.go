// Package restyutil writes the http exchanges of a resty client to disk, for
// inspecting what a portal actually served.
package restyutil

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out strings.Builder
	for _, k := range keys {
		for _, v := range headers[k] {
			fmt.Fprintf(&out, "%s: %s\n", k, v)
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func formatRequestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	if body == nil {
		return ""
	}
	defer body.Close()
	readBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	return string(readBody)
}

// 1: request method
// 2: request url
// 3: request headers in ("Key: Value" format)
// 4: request body
// 5: response status
// 6: final url
// 7: response headers in ("Key: Value" format)
// 8: response body
const exchangeTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%d %s

%s

%s`

// FormatExchange renders a request and its response as text.
func FormatExchange(res *resty.Response) string {
	var requestHeaders string
	var requestBody string
	finalUrl := res.Request.URL
	if raw := res.Request.RawRequest; raw != nil {
		requestHeaders = formatHeaders(raw.Header)
		requestBody = formatRequestBody(raw)
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL.String()
	}

	return fmt.Sprintf(
		exchangeTemplate,
		res.Request.Method, res.Request.URL,
		requestHeaders,
		requestBody,
		res.StatusCode(), finalUrl,
		formatHeaders(res.Header()),
		res.String(),
	)
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Dump writes every exchange of a client into its own file in a directory,
// numbered in the order the responses arrived.
type Dump struct {
	directory string
	counter   uint64
}

// NewDump creates dir if it does not exist yet.
func NewDump(dir string) (*Dump, error) {
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return nil, err
	}
	return &Dump{directory: dir}, nil
}

// Filename is the name the exchange number n of method on target is written
// under.
func Filename(n uint64, method, target string) string {
	name := path.Base(strings.SplitN(target, "?", 2)[0])
	name = unsafeFilename.ReplaceAllString(name, "_")
	return fmt.Sprintf("%04d-%s-%s.txt", n, method, name)
}

func (d *Dump) write(res *resty.Response) {
	n := atomic.AddUint64(&d.counter, 1)
	name := filepath.Join(d.directory, Filename(n, res.Request.Method, res.Request.URL))
	err := os.WriteFile(name, []byte(FormatExchange(res)), 0600)
	if err != nil {
		slog.Warn("failed to write exchange", "file", name, "err", err)
	}
}

// Attach makes the dump record every response the client receives.
func (d *Dump) Attach(client *resty.Client) {
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		d.write(res)
		return nil
	})
}

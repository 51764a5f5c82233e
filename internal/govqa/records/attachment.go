package records

import (
	"mime"
	"net/url"
	"strconv"
	"time"
)

// Scheme is the convention an attachment's signed url follows.
type Scheme string

const (
	// SchemeS3 carries response-content-disposition and an epoch Expires.
	SchemeS3 Scheme = "s3"
	// SchemeAzure carries rscd and an ISO8601 se.
	SchemeAzure Scheme = "azure"
	// SchemeUnknown is a url with neither set of parameters.
	SchemeUnknown Scheme = "unknown"
)

type Attachment struct {
	URL                *url.URL
	Scheme             Scheme
	ContentDisposition string
	Filename           string
	// Expires is when the signature runs out, zero if unknown.
	Expires time.Time
	Expired bool
	// Uploaded is the upload date as the portal wrote it.
	Uploaded   string
	UploadedAt time.Time
}

// azure accepts any of these for se, always in UTC
var azureExpiryLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02",
}

func parseAzureExpiry(value string) (time.Time, bool) {
	for _, layout := range azureExpiryLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// ParseAttachment reads the metadata the signing scheme puts into the
// query string of an attachment url. An expiry that cannot be read leaves
// Expires zero.
func ParseAttachment(raw string, loc *time.Location) (Attachment, error) {
	link, err := url.Parse(raw)
	if err != nil {
		return Attachment{}, err
	}
	query := link.Query()
	out := Attachment{URL: link, Scheme: SchemeUnknown}

	switch {
	case query.Has("response-content-disposition"):
		out.Scheme = SchemeS3
		out.ContentDisposition = query.Get("response-content-disposition")
		epoch, err := strconv.ParseInt(query.Get("Expires"), 10, 64)
		if err == nil {
			out.Expires = time.Unix(epoch, 0).In(loc)
		}
	case query.Has("rscd"):
		out.Scheme = SchemeAzure
		out.ContentDisposition = query.Get("rscd")
		if parsed, ok := parseAzureExpiry(query.Get("se")); ok {
			out.Expires = parsed.In(loc)
		}
	}

	if out.ContentDisposition != "" {
		_, params, err := mime.ParseMediaType(out.ContentDisposition)
		if err == nil {
			out.Filename = params["filename"]
		}
	}
	return out, nil
}

package records

import (
	"context"
	"net/http"
	"testing"
	"time"

	"govqa/internal/components/chrono"
	"govqa/internal/components/telemetry"
	"govqa/internal/govqa/portaltest"
	"govqa/internal/govqa/session"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var chicago = func() *time.Location {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		panic(err)
	}
	return loc
}()

func newScraper(t *testing.T, portal *portaltest.Portal, login bool) *Scraper {
	ctx := context.Background()
	s, err := session.Open(ctx, session.Options{
		BaseAddress:   portal.URL,
		RetryAttempts: -1,
		Timeout:       5 * time.Second,
	}, telemetry.NopAPI{})
	if err != nil {
		t.Fatal(err)
	}
	if login {
		err = s.Login(ctx, portaltest.Username, portaltest.Password)
		if err != nil {
			t.Fatal(err)
		}
	}
	clock := chrono.FixedImpl{Time: time.Date(2026, 10, 25, 12, 0, 0, 0, chicago)}
	return NewScraper(s, telemetry.NopAPI{}, clock)
}

func TestListRequests(t *testing.T) {
	portal := portaltest.New(t)

	{
		_, err := newScraper(t, portal, false).ListRequests(context.Background())
		require.ErrorIs(t, err, session.ErrUnauthenticated)
	}
	{
		summaries, err := newScraper(t, portal, true).ListRequests(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		diff := cmp.Diff([]Summary{
			{Id: "101", ReferenceNumber: "R000101-101726", Status: "Closed"},
			{Id: "102", ReferenceNumber: "R000102-101727", Status: "In Progress"},
			{Id: "103", ReferenceNumber: "R000103-101728", Status: "New"},
		}, summaries)
		if diff != "" {
			t.Fatal(diff)
		}
	}
}

func TestGetRequest(t *testing.T) {
	portal := portaltest.New(t)
	scraper := newScraper(t, portal, true)

	request, err := scraper.GetRequest(context.Background(), "101")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "101", request.Id)
	require.Equal(t, "Public Records Request", request.Type)
	require.Equal(t, portaltest.Username, request.ContactEmail)
	require.Equal(t, "R000101-101726", request.ReferenceNumber)

	diff := cmp.Diff([]Message{
		{
			Id:     "5001",
			Sender: "Records Clerk",
			Date:   "10/17/2026",
			Time:   "9:15:02 AM",
			SentAt: time.Date(2026, 10, 17, 9, 15, 2, 0, chicago),
			Body:   "Hello, Your request was received.",
		},
		{
			Id:       "5002",
			Sender:   "Jane Doe",
			Date:     "10/18/2026",
			Time:     "1:05 PM",
			SentAt:   time.Date(2026, 10, 18, 13, 5, 0, 0, chicago),
			Body:     "Please send the records for the Main Street project. Thanks, Jane",
			Expanded: true,
		},
	}, request.Messages)
	if diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, 1, portal.Hits(http.MethodGet, portaltest.PageRequestMessage))

	require.Len(t, request.Attachments, 2)
	{
		a := request.Attachments[0]
		require.Equal(t, SchemeS3, a.Scheme)
		require.Equal(t, "letter.pdf", a.Filename)
		require.Equal(t, int64(1792252800), a.Expires.Unix())
		require.True(t, a.Expired)
		require.Equal(t, "10/18/2026", a.Uploaded)
		require.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, chicago), a.UploadedAt)
		require.Equal(t, portaltest.S3AttachmentURL, a.URL.String())
	}
	{
		a := request.Attachments[1]
		require.Equal(t, SchemeAzure, a.Scheme)
		require.Equal(t, "scan.tif", a.Filename)
		require.Equal(t, `inline; filename="scan.tif"`, a.ContentDisposition)
		require.True(t, a.Expires.Equal(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)))
		require.False(t, a.Expired)
	}
}

func TestGetRequestWithoutTruncation(t *testing.T) {
	portal := portaltest.New(t)
	scraper := newScraper(t, portal, true)

	request, err := scraper.GetRequest(context.Background(), "102")
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, request.Messages, 1)
	require.False(t, request.Messages[0].Expanded)
	require.Equal(t, "We are reviewing your request.", request.Messages[0].Body)
	require.Empty(t, request.Attachments)
	require.Equal(t, 0, portal.Hits(http.MethodGet, portaltest.PageRequestMessage))
}

func TestGetRequestErrors(t *testing.T) {
	portal := portaltest.New(t)

	_, err := newScraper(t, portal, true).GetRequest(context.Background(), "999")
	require.ErrorIs(t, err, ErrRequestNotFound)

	_, err = newScraper(t, portal, false).GetRequest(context.Background(), "101")
	require.ErrorIs(t, err, session.ErrUnauthenticated)
}

func TestParseAttachment(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		scheme   Scheme
		filename string
		expires  time.Time
	}{
		{
			name:     "s3",
			url:      "https://b.s3.amazonaws.com/x.pdf?Expires=1700000000&response-content-disposition=attachment%3B%20filename%3D%22x.pdf%22",
			scheme:   SchemeS3,
			filename: "x.pdf",
			expires:  time.Unix(1700000000, 0),
		},
		{
			name:     "azure",
			url:      "https://a.blob.core.windows.net/c/y.docx?se=2024-01-02T03%3A04%3A05Z&rscd=attachment%3B%20filename%3Dy.docx",
			scheme:   SchemeAzure,
			filename: "y.docx",
			expires:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			name:     "azure date only",
			url:      "https://a.blob.core.windows.net/c/y.docx?se=2026-10-25&rscd=attachment%3B%20filename%3Dy.docx",
			scheme:   SchemeAzure,
			filename: "y.docx",
			expires:  time.Date(2026, 10, 25, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "azure without seconds",
			url:      "https://a.blob.core.windows.net/c/y.docx?se=2026-10-25T08%3A30Z&rscd=attachment%3B%20filename%3Dy.docx",
			scheme:   SchemeAzure,
			filename: "y.docx",
			expires:  time.Date(2026, 10, 25, 8, 30, 0, 0, time.UTC),
		},
		{
			name:     "unreadable expiry",
			url:      "https://b.s3.amazonaws.com/x.pdf?Expires=soon&response-content-disposition=inline%3B%20filename%3Dx.pdf",
			scheme:   SchemeS3,
			filename: "x.pdf",
		},
		{
			name:     "both prefers s3",
			url:      "https://example.com/z?response-content-disposition=inline%3B%20filename%3Da&rscd=inline%3B%20filename%3Db",
			scheme:   SchemeS3,
			filename: "a",
		},
		{
			name:   "unsigned",
			url:    "https://example.com/plain.txt",
			scheme: SchemeUnknown,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			a, err := ParseAttachment(test.url, time.UTC)
			if err != nil {
				t.Fatal(err)
			}
			require.Equal(t, test.scheme, a.Scheme)
			require.Equal(t, test.filename, a.Filename)
			require.True(t, test.expires.Equal(a.Expires), a.Expires)
		})
	}

	_, err := ParseAttachment("https://example.com/%zz", time.UTC)
	require.Error(t, err)
}

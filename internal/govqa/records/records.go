// Package records scrapes the requests of a logged in customer and their
// correspondence.
package records

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"govqa/internal/components/assert"
	"govqa/internal/components/chrono"
	"govqa/internal/components/telemetry"
	"govqa/internal/govqa/session"
	"govqa/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_records_list     = "records.list"
	report_records_get      = "records.get"
	report_records_message  = "records.message"
	report_records_expanded = "records.expanded_messages"
)

const (
	PageIssues      = "CustomerIssues.aspx"
	PageRequestEdit = "RequestEdit.aspx"
)

var ErrRequestNotFound = errors.New("govqa records: request not found")

const (
	loginRequiredText = "please log in"
	truncatedText     = "click here to view entire message"
)

type Summary struct {
	Id              string
	ReferenceNumber string
	Status          string
}

type Message struct {
	Id     string
	Sender string
	// Date and Time are as the portal wrote them.
	Date   string
	Time   string
	SentAt time.Time
	Body   string
	// Expanded is set when Body was fetched from the full message page.
	Expanded bool
}

type Request struct {
	Id              string
	Type            string
	ContactEmail    string
	ReferenceNumber string
	Messages        []Message
	Attachments     []Attachment
}

type Scraper struct {
	session *session.Session
	tel     telemetry.API
	clock   chrono.API
}

// NewScraper reads records through s. Dates are interpreted in the clock's
// location.
func NewScraper(s *session.Session, tel telemetry.API, clock chrono.API) *Scraper {
	assert.NotNil(s)
	assert.NotNil(tel)
	assert.NotNil(clock)
	return &Scraper{
		session: s,
		tel:     telemetry.NewScopedAPI("govqa_records", tel),
		clock:   clock,
	}
}

func (r *Scraper) get(ctx context.Context, endpoint string, query url.Values) (*session.Page, error) {
	page, err := r.session.Get(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}
	if page.Is(session.PageLogin) {
		return nil, fmt.Errorf("%s: %w", endpoint, session.ErrUnauthenticated)
	}
	return page, nil
}

// loginRequired reports whether the page is the portal's "please log in"
// banner. Only pages missing their content are checked, correspondence may
// contain the same words.
func loginRequired(page *session.Page) bool {
	return strings.Contains(strings.ToLower(htmlutil.Text(page.Doc.Selection)), loginRequiredText)
}

// ListRequests returns every request the customer submitted.
func (r *Scraper) ListRequests(ctx context.Context) ([]Summary, error) {
	page, err := r.get(ctx, PageIssues, nil)
	if err != nil {
		r.tel.ReportBroken(report_records_list, err)
		return nil, err
	}

	anchors := page.Doc.Find("a[id*='referenceLnk']")
	if anchors.Length() == 0 && loginRequired(page) {
		return nil, fmt.Errorf("%s: %w", PageIssues, session.ErrUnauthenticated)
	}

	var out []Summary
	anchors.Each(func(_ int, anchor *goquery.Selection) {
		links := htmlutil.GetAnchors(page.URL, anchor)
		if len(links) == 0 || links[0].Url.Query().Get("rid") == "" {
			r.tel.ReportWarning(report_records_list, "reference link without rid", anchor.AttrOr("href", ""))
			return
		}
		status := anchor.Closest("tr").Find("[id*='lblStatus']").First()
		out = append(out, Summary{
			Id:              links[0].Url.Query().Get("rid"),
			ReferenceNumber: links[0].Name,
			Status:          htmlutil.Text(status),
		})
	})

	r.tel.ReportCount(report_records_list, int64(len(out)))
	return out, nil
}

// GetRequest returns the details and correspondence of one request.
// Truncated messages are fetched in full.
func (r *Scraper) GetRequest(ctx context.Context, id string) (Request, error) {
	page, err := r.get(ctx, PageRequestEdit, url.Values{"rid": {id}})
	if err != nil {
		r.tel.ReportBroken(report_records_get, err)
		return Request{}, err
	}

	reference := page.Doc.Find("#RequestEditFormLayout_roReferenceNo")
	if reference.Length() == 0 {
		if loginRequired(page) {
			return Request{}, fmt.Errorf("%s: %w", PageRequestEdit, session.ErrUnauthenticated)
		}
		return Request{}, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}

	out := Request{
		Id:              id,
		Type:            htmlutil.Text(page.Doc.Find("#RequestEditFormLayout_roType")),
		ContactEmail:    htmlutil.Text(page.Doc.Find("#RequestEditFormLayout_roContactEmail")),
		ReferenceNumber: htmlutil.Text(reference),
	}

	expanded := 0
	items := page.Doc.Find("#dvMessageHistory .MessageHistoryItem")
	for i := range items.Nodes {
		msg, err := r.message(ctx, page, items.Eq(i))
		if err != nil {
			r.tel.ReportBroken(report_records_message, err, id)
			return Request{}, err
		}
		if msg.Expanded {
			expanded++
		}
		out.Messages = append(out.Messages, msg)
	}
	r.tel.ReportCount(report_records_expanded, int64(expanded))

	now := r.clock.Now()
	page.Doc.Find("#dvAttachments tr").Each(func(_ int, row *goquery.Selection) {
		raw, ok := row.Find("input[id*='hdnAttachmentUrl']").First().Attr("value")
		if !ok || raw == "" {
			return
		}
		attachment, err := ParseAttachment(raw, r.clock.Location())
		if err != nil {
			r.tel.ReportWarning(report_records_get, "unreadable attachment url", raw, err)
			return
		}
		if attachment.Scheme != SchemeUnknown && attachment.Expires.IsZero() {
			r.tel.ReportWarning(report_records_get, "attachment expiry unknown", raw)
		}
		attachment.Uploaded = htmlutil.Text(row.Find("[id*='lblUploadDate']"))
		attachment.UploadedAt, _ = time.ParseInLocation(uploadLayout, attachment.Uploaded, r.clock.Location())
		attachment.Expired = !attachment.Expires.IsZero() && attachment.Expires.Before(now)
		out.Attachments = append(out.Attachments, attachment)
	})

	return out, nil
}

var (
	headerRegex = regexp.MustCompile(`(?i)On\s+(\d{1,2}/\d{1,2}/\d{4})\s+(\d{1,2}:\d{2}(?::\d{2})?\s*[AP]M),\s*(.+?)\s+wrote:`)
	// the truncated body links to the full message from an onclick handler
	expandTargetRegex = regexp.MustCompile(`'([^']+\.aspx[^']*)'`)
)

var sentLayouts = []string{
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
}

const uploadLayout = "1/2/2006"

func (r *Scraper) message(ctx context.Context, page *session.Page, item *goquery.Selection) (Message, error) {
	msg := Message{}
	msg.Id, _ = item.Find("input[id*='hdnMessageId']").First().Attr("value")

	header := htmlutil.Text(item.Find(".MessageHeader"))
	groups := headerRegex.FindStringSubmatch(header)
	if groups == nil {
		r.tel.ReportWarning(report_records_message, "unrecognised message header", header)
	} else {
		msg.Date = groups[1]
		msg.Time = strings.ToUpper(groups[2])
		msg.Sender = groups[3]
		for _, layout := range sentLayouts {
			sentAt, err := time.ParseInLocation(layout, msg.Date+" "+msg.Time, r.clock.Location())
			if err == nil {
				msg.SentAt = sentAt
				break
			}
		}
	}

	body := item.Find(".MessageBody")
	msg.Body = htmlutil.Text(body)
	if !strings.Contains(strings.ToLower(msg.Body), truncatedText) {
		return msg, nil
	}

	target := ""
	body.Find("[onclick]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		onclick, _ := s.Attr("onclick")
		if groups := expandTargetRegex.FindStringSubmatch(onclick); groups != nil {
			target = groups[1]
			return false
		}
		return true
	})
	if target == "" {
		r.tel.ReportWarning(report_records_message, "truncated message without link", msg.Id)
		return msg, nil
	}

	ref, err := url.Parse(target)
	if err != nil {
		return Message{}, fmt.Errorf("message %s: %w", msg.Id, err)
	}
	full, err := r.get(ctx, page.URL.ResolveReference(ref).String(), nil)
	if err != nil {
		return Message{}, fmt.Errorf("message %s: %w", msg.Id, err)
	}
	fullBody := full.Doc.Find("#dvMessageBody")
	if fullBody.Length() == 0 {
		if loginRequired(full) {
			return Message{}, fmt.Errorf("message %s: %w", msg.Id, session.ErrUnauthenticated)
		}
		fullBody = full.Doc.Find("body")
	}
	msg.Body = htmlutil.Text(fullBody)
	msg.Expanded = true
	return msg, nil
}

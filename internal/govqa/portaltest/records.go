package portaltest

import (
	"fmt"
	"html"
	"net/http"
	"strings"
)

type message struct {
	id     string
	header string
	body   string
	// full is the html of the expanded message, set when body is truncated.
	full string
}

type attachment struct {
	url      string
	uploaded string
}

type record struct {
	id          string
	referenceNo string
	status      string
	kind        string
	email       string
	messages    []message
	attachments []attachment
}

const (
	S3AttachmentURL    = "https://govqa-attachments.s3.amazonaws.com/101/letter.pdf?AWSAccessKeyId=AKIAEXAMPLE&Expires=1792252800&Signature=c2lnbmF0dXJl%3D&response-content-disposition=attachment%3B%20filename%3D%22letter.pdf%22"
	AzureAttachmentURL = "https://govqastorage.blob.core.windows.net/att/101/scan.tif?sv=2020-08-04&se=2026-11-01T00%3A00%3A00Z&sr=b&sp=r&rscd=inline%3B%20filename%3D%22scan.tif%22&sig=c2ln"
)

func newRecord(index int) *record {
	id := fmt.Sprint(101 + index)
	return &record{
		id:          id,
		referenceNo: fmt.Sprintf("R%06d-1017%02d", 101+index, 26+index),
		status:      "New",
		kind:        "Public Records Request",
		email:       Username,
	}
}

func fixtureRecords() []*record {
	first := newRecord(0)
	first.status = "Closed"
	first.messages = []message{
		{
			id:     "5001",
			header: "On 10/17/2026 9:15:02 AM, Records Clerk wrote:",
			body:   "<p>Hello,</p>\n<p>Your request   was\n   received.</p>",
		},
		{
			id:     "5002",
			header: "On 10/18/2026 1:05 PM, Jane Doe wrote:",
			body: `<p>Please send the records for the</p> ... ` +
				`<a href="#" onclick="javascript:ShowFullMessage('RequestEditMessage.aspx?rid=101&amp;mid=5002'); return false;">Click here to view entire message</a>`,
			full: "<p>Please send the records for the\n   Main Street project.</p>\n<p>Thanks,<br/>Jane</p>",
		},
	}
	first.attachments = []attachment{
		{url: S3AttachmentURL, uploaded: "10/18/2026"},
		{url: AzureAttachmentURL, uploaded: "10/19/2026"},
	}

	second := newRecord(1)
	second.status = "In Progress"
	second.messages = []message{
		{
			id:     "5003",
			header: "On 10/20/2026 4:40:00 PM, Records Clerk wrote:",
			body:   "We are reviewing your request.",
		},
	}

	third := newRecord(2)
	return []*record{first, second, third}
}

func (p *Portal) findRecord(id string) *record {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.records {
		if r.id == id {
			return r
		}
	}
	return nil
}

const loginRequired = `<div class="alert"><span id="lblLoginRequired">Please log in to view this page.</span></div>`

func (p *Portal) issuesPage(w http.ResponseWriter, r *http.Request) {
	if !p.loggedIn(r) {
		write(w, layout("My Requests", PageIssues, identityScript(false)+loginRequired))
		return
	}

	p.mu.Lock()
	var rows strings.Builder
	for i, rec := range p.records {
		fmt.Fprintf(
			&rows,
			`<tr><td><a id="rptRequests_ctl%02d_referenceLnk" href="RequestEdit.aspx?rid=%s">%s</a></td>`+
				`<td>%s</td><td><span id="rptRequests_ctl%02d_lblStatus">%s</span></td></tr>`+"\n",
			i, rec.id, rec.referenceNo, html.EscapeString(rec.kind), i, rec.status,
		)
	}
	p.mu.Unlock()

	body := identityScript(true) +
		`<table id="tblRequests"><tr><th>Reference No</th><th>Type</th><th>Status</th></tr>` + "\n" +
		rows.String() + `</table>`
	write(w, layout("My Requests", PageIssues, body))
}

func (p *Portal) requestEditPage(w http.ResponseWriter, r *http.Request) {
	if !p.loggedIn(r) {
		write(w, layout("Request", PageRequestEdit, identityScript(false)+loginRequired))
		return
	}
	rec := p.findRecord(r.URL.Query().Get("rid"))
	if rec == nil {
		write(w, layout("Request", PageRequestEdit, `<span id="lblError">The requested record could not be found.</span>`))
		return
	}

	var out strings.Builder
	fmt.Fprintf(&out, `<div id="RequestEditFormLayout">
<span id="RequestEditFormLayout_roType">%s</span>
<span id="RequestEditFormLayout_roContactEmail">%s</span>
<span id="RequestEditFormLayout_roReferenceNo">%s</span>
</div>
<div id="dvMessageHistory">
`, html.EscapeString(rec.kind), html.EscapeString(rec.email), rec.referenceNo)
	for i, m := range rec.messages {
		fmt.Fprintf(&out, `<div class="MessageHistoryItem">
<input type="hidden" id="rptMessageHistory_ctl%02d_hdnMessageId" value="%s" />
<div class="MessageHeader">%s</div>
<div class="MessageBody">%s</div>
</div>
`, i, m.id, html.EscapeString(m.header), m.body)
	}
	out.WriteString("</div>\n<div id=\"dvAttachments\"><table>\n")
	for i, a := range rec.attachments {
		fmt.Fprintf(&out, `<tr><td><input type="hidden" id="rptAttachments_ctl%02d_hdnAttachmentUrl" value="%s" /></td>`+
			`<td><span id="rptAttachments_ctl%02d_lblUploadDate">%s</span></td></tr>`+"\n",
			i, html.EscapeString(a.url), i, a.uploaded)
	}
	out.WriteString("</table></div>\n")
	write(w, layout("Request "+rec.referenceNo, PageRequestEdit, out.String()))
}

func (p *Portal) requestMessagePage(w http.ResponseWriter, r *http.Request) {
	if !p.loggedIn(r) {
		write(w, layout("Message", PageRequestMessage, loginRequired))
		return
	}
	rec := p.findRecord(r.URL.Query().Get("rid"))
	if rec == nil {
		http.NotFound(w, r)
		return
	}
	mid := r.URL.Query().Get("mid")
	for _, m := range rec.messages {
		if m.id == mid && m.full != "" {
			write(w, layout("Message", PageRequestMessage, `<div id="dvMessageBody">`+m.full+`</div>`))
			return
		}
	}
	http.NotFound(w, r)
}

func (p *Portal) captchaResource(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("t")
	switch r.URL.Query().Get("get") {
	case "image":
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(CaptchaImage(token))
	case "sound":
		w.Header().Set("Content-Type", "audio/x-wav")
		w.Write(CaptchaAudio(token))
	default:
		http.NotFound(w, r)
	}
}

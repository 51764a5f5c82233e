package fields

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"os"
	"testing"

	"govqa/internal/govqa/session"
	"govqa/pkg/webforms"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func loadGroups(t testing.TB) map[string]Group {
	source, err := os.ReadFile("testdata/groups.html")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(source))
	if err != nil {
		t.Fatal(err)
	}
	groups, err := DiscoverGroups(doc.Selection, string(source))
	if err != nil {
		t.Fatal(err)
	}
	out := map[string]Group{}
	var labels []string
	for _, g := range groups {
		out[g.Label] = g
		labels = append(labels, g.Label)
	}

	diff := cmp.Diff([]string{
		"first_name",
		"mailing_address",
		"phone",
		"password",
		"confirm_password",
		"preferred_contact_method",
		"state",
		"i_agree",
	}, labels)
	if diff != "" {
		t.Fatal(diff)
	}
	return out
}

func classify(t testing.TB, group Group) Field {
	field, err := Classify(Classifiers, group)
	if err != nil {
		t.Fatal(err)
	}
	return field
}

func values(p *webforms.Payload) map[string]string {
	out := map[string]string{}
	for _, key := range p.Keys() {
		out[key], _ = p.Get(key)
	}
	return out
}

func TestClassify(t *testing.T) {
	groups := loadGroups(t)

	testCases := []struct {
		label string
		kind  Kind
		keys  []string
	}{
		{label: "first_name", kind: KindText, keys: []string{"ASPxFormLayout1$txtFirstName"}},
		{label: "mailing_address", kind: KindTextArea, keys: []string{"ASPxFormLayout1$txtAddress"}},
		{label: "phone", kind: KindPhone, keys: []string{"ASPxFormLayout1$txtPhone"}},
		{label: "password", kind: KindPassword, keys: []string{"ASPxFormLayout1$txtPassword"}},
		{label: "preferred_contact_method", kind: KindRadioGroup, keys: []string{"ASPxFormLayout1$rblContactMethod"}},
		{label: "state", kind: KindComboBox, keys: []string{"ASPxFormLayout1$cboState", "ASPxFormLayout1$cboState$VI"}},
		{label: "i_agree", kind: KindCheckBox, keys: []string{"ASPxFormLayout1$chkAgree"}},
	}

	for _, test := range testCases {
		t.Run(test.label, func(t *testing.T) {
			field := classify(t, groups[test.label])
			require.Equal(t, test.label, field.Label())
			require.Equal(t, test.kind, field.Kind())
			require.Equal(t, test.keys, field.Keys())
			require.Equal(t, "string", field.Property().Type)
		})
	}

	require.True(t, IsConfirmation(groups["confirm_password"]))
	require.False(t, IsConfirmation(groups["password"]))
}

func TestClassifyPrecedence(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(`<table>
<tr><td><label>Notes</label><em>*</em></td>
<td><textarea name="notes"></textarea><input type="password" name="phone_pin" /></td></tr>
</table>`))
	if err != nil {
		t.Fatal(err)
	}
	groups, err := DiscoverGroups(doc.Selection, "")
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, groups, 1)
	require.Equal(t, KindTextArea, classify(t, groups[0]).Kind())

	// without the textarea the phone name wins over the password type
	groups[0].Table.Find("textarea").Remove()
	require.Equal(t, KindPhone, classify(t, groups[0]).Kind())
}

func TestDiscoverDuplicateLabel(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(`
<table><tr><td><label>Name:</label><em>*</em><input name="a" /></td></tr></table>
<table><tr><td><label>Name</label><em>*</em><input name="b" /></td></tr></table>`))
	if err != nil {
		t.Fatal(err)
	}
	_, err = DiscoverGroups(doc.Selection, "")
	require.True(t, errors.Is(err, ErrDuplicateLabel), err)
}

func TestPhoneFill(t *testing.T) {
	field := classify(t, loadGroups(t)["phone"])
	require.Equal(t, PhonePattern, field.Property().Pattern)

	for _, value := range []string{"3125550100", "", `"quoted"`} {
		payload, err := field.Fill(value)
		if err != nil {
			t.Fatal(err)
		}
		require.Len(t, payload.Keys(), 2)
		require.Equal(t, value, values(payload)["ASPxFormLayout1$txtPhone"])
	}

	payload, err := field.Fill("3125550100")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(
		t,
		`{"rawValue":"3125550100","validationState":""}`,
		values(payload)["ASPxFormLayout1$txtPhone$State"],
	)
}

func TestPasswordConfirmation(t *testing.T) {
	groups := loadGroups(t)
	field := classify(t, groups["password"]).(*Password)
	require.False(t, field.Confirmed())

	field.AddConfirmation("ASPxFormLayout1$txtConfirmPassword")
	field.AddConfirmation("ASPxFormLayout1$txtConfirmPassword")
	require.True(t, field.Confirmed())

	payload, err := field.Fill("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	diff := cmp.Diff(map[string]string{
		"ASPxFormLayout1$txtPassword":        "s3cret",
		"ASPxFormLayout1$txtConfirmPassword": "s3cret",
	}, values(payload))
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestRadioGroupFill(t *testing.T) {
	field := classify(t, loadGroups(t)["preferred_contact_method"])
	enumerated, ok := field.(Enumerated)
	require.True(t, ok)
	require.Equal(t, []string{"Email", "Postal Mail", "Telephone"}, enumerated.Options())
	require.Equal(t, enumerated.Options(), field.Property().Enum)

	for i := 0; i < 2; i++ {
		payload, err := field.Fill("Postal Mail")
		if err != nil {
			t.Fatal(err)
		}
		diff := cmp.Diff(map[string]string{
			"ASPxFormLayout1$rblContactMethod":     "1",
			"ASPxFormLayout1$rblContactMethod$RB1": "C",
		}, values(payload))
		if diff != "" {
			t.Fatal(diff)
		}
	}

	_, err := field.Fill("Carrier Pigeon")
	require.True(t, errors.Is(err, ErrInvalidOption), err)
}

func TestComboBoxFill(t *testing.T) {
	field := classify(t, loadGroups(t)["state"])
	require.Equal(t, []string{"IL", "WI"}, field.Property().Enum)

	payload, err := field.Fill("WI")
	if err != nil {
		t.Fatal(err)
	}
	diff := cmp.Diff(map[string]string{
		"ASPxFormLayout1$cboState":    "WI",
		"ASPxFormLayout1$cboState$VI": "WI",
	}, values(payload))
	if diff != "" {
		t.Fatal(diff)
	}

	_, err = field.Fill("Wisconsin")
	require.True(t, errors.Is(err, ErrInvalidOption), err)
}

func TestCheckBoxFill(t *testing.T) {
	field := classify(t, loadGroups(t)["i_agree"])
	require.Equal(t, []string{Unchecked, Checked}, field.Property().Enum)

	payload, err := field.Fill(Checked)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, map[string]string{"ASPxFormLayout1$chkAgree": "C"}, values(payload))

	_, err = field.Fill("yes")
	require.True(t, errors.Is(err, ErrInvalidOption), err)
}

func TestMissingOptionsIsFatal(t *testing.T) {
	group := loadGroups(t)["preferred_contact_method"]
	group.Source = ""
	_, err := Classify(Classifiers, group)
	require.True(t, errors.Is(err, webforms.ErrOptionsNotFound), err)
}

type fakeFetcher map[string]string

func (f fakeFetcher) Fetch(_ context.Context, target *url.URL) ([]byte, string, error) {
	return []byte(f[target.String()]), "application/octet-stream", nil
}

func TestFindCaptcha(t *testing.T) {
	config := CaptchaConfig{
		ImageID:             "captcha_CaptchaImage",
		AudioLinkID:         "captcha_SoundLink",
		InputName:           "ASPxFormLayout1$txtCaptchaCode",
		HashInputName:       "BDC_VCID_captcha",
		WorkaroundInputName: "BDC_BackWorkaround_captcha",
	}
	pageUrl, _ := url.Parse("https://records.example.gov/WEBAPP/_rs/(S(abc))/CustomerDetails.aspx")
	fetcher := fakeFetcher{
		"https://records.example.gov/WEBAPP/_rs/(S(abc))/BotDetectCaptcha.ashx?get=image&t=x1": "image",
		"https://records.example.gov/WEBAPP/_rs/(S(abc))/BotDetectCaptcha.ashx?get=sound&t=x1": "sound",
	}

	{
		doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(`
<img id="captcha_CaptchaImage" src="BotDetectCaptcha.ashx?get=image&amp;t=x1" />
<a id="captcha_SoundLink" href="BotDetectCaptcha.ashx?get=sound&amp;t=x1">sound</a>
<input type="hidden" name="BDC_VCID_captcha" value="x1" />`))
		if err != nil {
			t.Fatal(err)
		}
		captcha, err := FindCaptcha(context.Background(), fetcher, &session.Page{URL: pageUrl, Doc: doc}, config)
		if err != nil {
			t.Fatal(err)
		}
		require.NotNil(t, captcha)
		require.Equal(t, "image", string(captcha.Image))
		require.Equal(t, "sound", string(captcha.Audio))
		require.Equal(t, "x1", captcha.Hash)
		require.Equal(t, []string{config.InputName}, captcha.Keys())

		payload, err := captcha.Fill("AB12")
		if err != nil {
			t.Fatal(err)
		}
		diff := cmp.Diff(map[string]string{
			"BDC_VCID_captcha":               "x1",
			"BDC_BackWorkaround_captcha":     "1",
			"ASPxFormLayout1$txtCaptchaCode": "AB12",
		}, values(payload))
		if diff != "" {
			t.Fatal(diff)
		}
	}
	{
		doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(`<p>no challenge</p>`))
		if err != nil {
			t.Fatal(err)
		}
		captcha, err := FindCaptcha(context.Background(), fetcher, &session.Page{URL: pageUrl, Doc: doc}, config)
		if err != nil {
			t.Fatal(err)
		}
		require.Nil(t, captcha)
	}
}

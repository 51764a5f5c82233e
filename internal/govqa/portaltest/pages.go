package portaltest

import (
	"fmt"
	"html"
	"strings"
)

func layout(title, action, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<form method="post" action="%s" id="form1">
%s
</form>
</body>
</html>`, html.EscapeString(title), html.EscapeString(action), body)
}

func secretsHTML(serial, parts int) string {
	var out strings.Builder
	out.WriteString(`<div class="aspNetHidden">
<input type="hidden" name="__EVENTTARGET" id="__EVENTTARGET" value="" />
<input type="hidden" name="__EVENTARGUMENT" id="__EVENTARGUMENT" value="" />
`)
	if parts > 1 {
		fmt.Fprintf(&out, `<input type="hidden" name="__VIEWSTATEFIELDCOUNT" id="__VIEWSTATEFIELDCOUNT" value="%d" />`+"\n", parts)
	}
	for i := 0; i < parts; i++ {
		name := "__VIEWSTATE"
		if i > 0 {
			name = fmt.Sprintf("__VIEWSTATE%d", i)
		}
		fmt.Fprintf(&out, `<input type="hidden" name="%s" id="%s" value="%s" />`+"\n", name, name, viewstateValue(serial, i))
	}
	out.WriteString(`</div>
<div class="aspNetHidden">
<input type="hidden" name="__VIEWSTATEGENERATOR" id="__VIEWSTATEGENERATOR" value="C2EE9ABB" />
</div>
`)
	fmt.Fprintf(&out, `<input name="__RequestVerificationToken" type="hidden" value="%s" />`+"\n", verificationToken(serial))
	return out.String()
}

func viewstateValue(serial, part int) string {
	return fmt.Sprintf("/wEPDw%04d-%d", serial, part)
}

func verificationToken(serial int) string {
	return fmt.Sprintf("CfDJ8-%04d", serial)
}

func validationSummary(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	var out strings.Builder
	out.WriteString(`<table class="dxvsValidationSummary" id="ASPxValidationSummary1"><tr><td><table class="dxvsRC">`)
	for _, e := range errs {
		fmt.Fprintf(&out, `<tr><td class="dxvsE">%s</td></tr>`, html.EscapeString(e))
	}
	out.WriteString(`</table></td></tr></table>`)
	return out.String()
}

func requiredGroup(label, control string) string {
	return fmt.Sprintf(`<table class="dxflGroup"><tr>
<td class="dxflCaptionCell"><label>%s:</label><em>*</em></td>
<td class="dxflNestedControlCell">%s</td>
</tr></table>
`, html.EscapeString(label), control)
}

func optionalGroup(label, control string) string {
	return fmt.Sprintf(`<table class="dxflGroup"><tr>
<td class="dxflCaptionCell"><label>%s:</label></td>
<td class="dxflNestedControlCell">%s</td>
</tr></table>
`, html.EscapeString(label), control)
}

func textInput(name, inputType string) string {
	id := strings.ReplaceAll(name, "$", "_")
	return fmt.Sprintf(`<table class="dxeTextBoxSys"><tr><td><input class="dxeEditArea" type="%s" name="%s" id="%s_I" value="" /></td></tr></table>`, inputType, name, id)
}

func textArea(name string) string {
	id := strings.ReplaceAll(name, "$", "_")
	return fmt.Sprintf(`<table class="dxeMemoSys"><tr><td><textarea name="%s" id="%s_I" rows="5"></textarea></td></tr></table>`, name, id)
}

func radioList(name string, options []string) string {
	id := strings.ReplaceAll(name, "$", "_")
	var out strings.Builder
	fmt.Fprintf(&out, `<table role="radiogroup" class="dxeRadioButtonList" id="%s">`, id)
	fmt.Fprintf(&out, `<tr><td><input type="hidden" name="%s" id="%s_VI" value="" /></td></tr>`, name, id)
	for i, option := range options {
		fmt.Fprintf(
			&out,
			`<tr><td><span class="dxeIRadioButton"><input type="radio" name="%s$RB%d" id="%s_RB%d_I" value="U" /></span><label for="%s_RB%d_I">%s</label></td></tr>`,
			name, i, id, i, id, i, html.EscapeString(option),
		)
	}
	out.WriteString(`</table>`)
	return out.String()
}

func radioScript(name string, options []string) string {
	id := strings.ReplaceAll(name, "$", "_")
	items := make([]string, len(options))
	for i, option := range options {
		items[i] = fmt.Sprintf(`['%d','%s','']`, i, jsEscape(option))
	}
	return fmt.Sprintf(
		`ASPx.createControl(ASPxClientRadioButtonList,'%s','',{'uniqueID':'%s','stateObject':{'value':''},'items':[%s],'isRequired':true});`,
		id, name, strings.Join(items, ","),
	)
}

func comboBox(name string) string {
	id := strings.ReplaceAll(name, "$", "_")
	return fmt.Sprintf(`<table class="dxeButtonEditSys" id="%s"><tr>
<td><input class="dxeEditArea" type="text" role="combobox" name="%s" id="%s_I" value="" autocomplete="off" /></td>
<td class="dxeButton"><img src="data:," alt="v" /></td>
</tr></table>
<input type="hidden" name="%s$VI" id="%s_VI" value="" />
<input type="hidden" name="%s$DDDState" id="%s_DDDState" value="{&quot;windowsState&quot;:&quot;&quot;}" />`,
		id, name, id, name, id, name, id,
	)
}

func comboScript(name string, values, texts []string) string {
	id := strings.ReplaceAll(name, "$", "_")
	items := []string{`{'value':'','text':''}`}
	for i := range values {
		items = append(items, fmt.Sprintf(`{'value':'%s','text':'%s'}`, jsEscape(values[i]), jsEscape(texts[i])))
	}
	return fmt.Sprintf(
		"ASPx.createControl(ASPxClientListBox,'%s_DDD_L','',{'uniqueID':'%s$DDD$L','stateObject':{'CustomCallback':''},'itemsInfo':[%s],'isSyncEnabled':false});\n"+
			"ASPx.createControl(ASPxClientComboBox,'%s','',{'uniqueID':'%s','stateObject':{'rawValue':''}});",
		id, name, strings.Join(items, ","), id, name,
	)
}

func checkBox(name string) string {
	id := strings.ReplaceAll(name, "$", "_")
	return fmt.Sprintf(`<span class="dxichCellSys dxeBase" id="%s"><span class="dxICheckBox dxichSys" role="checkbox" aria-checked="false"><input type="hidden" name="%s" id="%s_S" value="U" /></span></span>`, id, name, id)
}

func jsEscape(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

// CaptchaIds are the element ids and input names of one captcha instance.
type CaptchaIds struct {
	ImageId        string
	AudioLinkId    string
	InputName      string
	HashInput      string
	WorkaroundName string
}

var AccountCaptcha = CaptchaIds{
	ImageId:        "c_customerdetails_aspxformlayout1_captcha_CaptchaImage",
	AudioLinkId:    "c_customerdetails_aspxformlayout1_captcha_SoundLink",
	InputName:      "ASPxFormLayout1$txtCaptchaCode",
	HashInput:      "BDC_VCID_c_customerdetails_aspxformlayout1_captcha",
	WorkaroundName: "BDC_BackWorkaround_c_customerdetails_aspxformlayout1_captcha",
}

var RequestCaptcha = CaptchaIds{
	ImageId:        "c_requestopen_captchaformlayout_reqstopencaptcha_CaptchaImage",
	AudioLinkId:    "c_requestopen_captchaformlayout_reqstopencaptcha_SoundLink",
	InputName:      "CaptchaFormLayout$reqstOpenCaptchaTextBox",
	HashInput:      "BDC_VCID_c_requestopen_captchaformlayout_reqstopencaptcha",
	WorkaroundName: "BDC_BackWorkaround_c_requestopen_captchaformlayout_reqstopencaptcha",
}

func captchaHTML(ids CaptchaIds, token string) string {
	inputId := strings.ReplaceAll(ids.InputName, "$", "_")
	return fmt.Sprintf(`<table class="dxflGroup"><tr>
<td><label>Type the characters you see in the picture:</label></td>
<td>
<div class="BDC_CaptchaDiv">
<img class="BDC_CaptchaImage" id="%s" src="%sBotDetectCaptcha.ashx?get=image&amp;c=%s&amp;t=%s" alt="Retype the CAPTCHA code from the image" />
<a id="%s" href="BotDetectCaptcha.ashx?get=sound&amp;c=%s&amp;t=%s" title="Speak the CAPTCHA code">sound</a>
<input type="hidden" name="%s" id="%s" value="%s" />
<input type="hidden" name="%s" id="%s" value="0" />
</div>
<input type="text" name="%s" id="%s" value="" />
</td>
</tr></table>
`,
		ids.ImageId, Base, ids.HashInput, token,
		ids.AudioLinkId, ids.HashInput, token,
		ids.HashInput, ids.HashInput, token,
		ids.WorkaroundName, ids.WorkaroundName,
		ids.InputName, inputId,
	)
}

func scriptBlock(lines ...string) string {
	return "<script type=\"text/javascript\">\n//<![CDATA[\n" + strings.Join(lines, "\n") + "\n//]]>\n</script>\n"
}

func requiredSpanGroup(label, control string) string {
	return fmt.Sprintf(`<table class="dxflGroup"><tr>
<td class="dxflCaptionCell"><span class="dxflCaption">%s</span><em>*</em></td>
<td class="dxflNestedControlCell">%s</td>
</tr></table>
`, html.EscapeString(label), control)
}

func saveButton(name, text string) string {
	id := strings.ReplaceAll(name, "$", "_")
	return fmt.Sprintf(`<div class="dxbButton" id="%s"><input class="dxb-hb" value="%s" type="submit" name="%s" /></div>`, id, html.EscapeString(text), name)
}

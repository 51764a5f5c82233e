package fields

import (
	"context"
	"fmt"
	"net/url"

	"govqa/internal/govqa/session"
	"govqa/pkg/htmlutil"
	"govqa/pkg/webforms"
)

const CaptchaLabel = "captcha"

// CaptchaConfig locates the captcha of one form. The ids differ between
// forms of the same portal.
type CaptchaConfig struct {
	ImageID     string `json:"image_id"`
	AudioLinkID string `json:"audio_link_id"`
	// InputName is the text input the code is entered into.
	InputName string `json:"input_name"`
	// HashInputName holds the challenge's verification token.
	HashInputName string `json:"hash_input_name"`
	// WorkaroundInputName must be posted with a value of "1".
	WorkaroundInputName string `json:"workaround_input_name"`
}

// Fetcher downloads challenge resources.
type Fetcher interface {
	Fetch(ctx context.Context, target *url.URL) ([]byte, string, error)
}

// Captcha is one challenge. A new one is issued on every render of a form,
// a Captcha is never valid for more than one submission.
type Captcha struct {
	Image     []byte
	ImageType string
	Audio     []byte
	AudioType string
	// Hash is the server side token the code is verified against.
	Hash string

	config CaptchaConfig
}

// FindCaptcha downloads the challenge configured by config from page. It
// returns nil if the page shows no challenge.
func FindCaptcha(ctx context.Context, fetcher Fetcher, page *session.Page, config CaptchaConfig) (*Captcha, error) {
	captcha := &Captcha{config: config}
	found := false

	if config.ImageID != "" {
		src, ok := htmlutil.FilterAttr(page.Doc.Find("img"), "id", config.ImageID).First().Attr("src")
		if ok {
			body, contentType, err := fetchRelative(ctx, fetcher, page.URL, src)
			if err != nil {
				return nil, fmt.Errorf("captcha image: %w", err)
			}
			captcha.Image = body
			captcha.ImageType = contentType
			found = true
		}
	}
	if config.AudioLinkID != "" {
		href, ok := htmlutil.FilterAttr(page.Doc.Find("a"), "id", config.AudioLinkID).First().Attr("href")
		if ok {
			body, contentType, err := fetchRelative(ctx, fetcher, page.URL, href)
			if err != nil {
				return nil, fmt.Errorf("captcha audio: %w", err)
			}
			captcha.Audio = body
			captcha.AudioType = contentType
			found = true
		}
	}
	if !found {
		return nil, nil
	}

	hash, ok := htmlutil.FilterAttr(page.Doc.Find("input"), "name", config.HashInputName).First().Attr("value")
	if !ok || hash == "" {
		return nil, fmt.Errorf("%w: captcha without %s", ErrMalformed, config.HashInputName)
	}
	captcha.Hash = hash
	return captcha, nil
}

func fetchRelative(ctx context.Context, fetcher Fetcher, base *url.URL, ref string) ([]byte, string, error) {
	target, err := url.Parse(ref)
	if err != nil {
		return nil, "", err
	}
	return fetcher.Fetch(ctx, base.ResolveReference(target))
}

func (c *Captcha) Label() string {
	return CaptchaLabel
}

func (c *Captcha) Kind() Kind {
	return KindCaptcha
}

func (c *Captcha) Property() Property {
	return Property{Type: "string"}
}

func (c *Captcha) Keys() []string {
	return []string{c.config.InputName}
}

// Fill writes the entered code with the challenge's token and the
// workaround flag.
func (c *Captcha) Fill(code string) (*webforms.Payload, error) {
	payload := webforms.NewPayload()
	payload.Set(c.config.HashInputName, c.Hash)
	payload.Set(c.config.WorkaroundInputName, "1")
	payload.Set(c.config.InputName, code)
	return payload, nil
}

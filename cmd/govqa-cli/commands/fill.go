package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"govqa/internal/govqa/fields"
	"govqa/internal/govqa/form"

	"github.com/spf13/cobra"
	"github.com/titanous/json5"
)

// formFlags are shared by the commands that submit a form.
type formFlags struct {
	set        map[string]string
	valuesFile string
	captchaDir string
	attempts   int
}

func (f *formFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringToStringVar(&f.set, "set", nil, "a field value as label=value, repeatable")
	cmd.Flags().StringVar(&f.valuesFile, "values", "", "a json5 file of field values keyed by label")
	cmd.Flags().StringVar(&f.captchaDir, "captcha-dir", ".", "where captcha images and audio are written")
	cmd.Flags().IntVar(&f.attempts, "attempts", 3, "how many captcha codes to try")
}

func (f *formFlags) values() (map[string]string, error) {
	out := map[string]string{}
	if f.valuesFile != "" {
		contents, err := os.ReadFile(f.valuesFile)
		if err != nil {
			return nil, err
		}
		err = json5.Unmarshal(contents, &out)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.valuesFile, err)
		}
	}
	for label, value := range f.set {
		out[label] = value
	}
	return out, nil
}

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(cmd *cobra.Command) prompter {
	return prompter{
		in:  bufio.NewReader(cmd.InOrStdin()),
		out: cmd.OutOrStdout(),
	}
}

func (p prompter) ask(question string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// complete asks for every field of f that values does not set.
func (p prompter) complete(f *form.Form, values map[string]string) error {
	for _, label := range f.Fields() {
		if _, ok := values[label]; ok {
			continue
		}
		field, _ := f.Field(label)
		question := label
		if enumerated, ok := field.(fields.Enumerated); ok {
			question = fmt.Sprintf("%s [%s]", label, strings.Join(enumerated.Options(), ", "))
		}
		value, err := p.ask(question)
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		values[label] = value
	}
	return nil
}

func extension(contentType, fallback string) string {
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 || slices.Contains(exts, fallback) {
		return fallback
	}
	return exts[0]
}

// solve writes the current captcha of f to dir and asks for its code.
func (p prompter) solve(f *form.Form, dir string) (string, error) {
	captcha := f.Captcha()
	if captcha == nil {
		return "", nil
	}
	written := []string{}
	if len(captcha.Image) > 0 {
		name := filepath.Join(dir, "captcha"+extension(captcha.ImageType, ".jpg"))
		err := os.WriteFile(name, captcha.Image, 0644)
		if err != nil {
			return "", err
		}
		written = append(written, name)
	}
	if len(captcha.Audio) > 0 {
		name := filepath.Join(dir, "captcha"+extension(captcha.AudioType, ".wav"))
		err := os.WriteFile(name, captcha.Audio, 0644)
		if err != nil {
			return "", err
		}
		written = append(written, name)
	}
	fmt.Fprintf(p.out, "captcha written to %s\n", strings.Join(written, ", "))
	return p.ask("captcha code")
}

// submit asks for missing values and submits them through send, a new
// captcha code is asked for every time the portal rejects one.
func (p prompter) submit(
	ctx context.Context,
	f *form.Form,
	flags formFlags,
	values map[string]string,
	send func(ctx context.Context, values map[string]string) error,
) error {
	err := p.complete(f, values)
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		code, err := p.solve(f, flags.captchaDir)
		if err != nil {
			return err
		}
		if code != "" {
			values[fields.CaptchaLabel] = code
		}

		err = send(ctx, values)
		var incorrect *form.IncorrectCaptchaError
		if errors.As(err, &incorrect) && attempt < flags.attempts && f.State() == form.Ready {
			fmt.Fprintln(p.out, "incorrect code, try again")
			continue
		}
		return err
	}
}

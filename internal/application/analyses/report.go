package analyses

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/bryanwahyu/research-market/internal/domain/errs"
)

// Report formats accepted from the engine.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// renderHTML returns body as an HTML document; markdown is converted.
func renderHTML(format, body string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatHTML:
		return body, nil
	case FormatMarkdown, "md":
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(body), &buf); err != nil {
			return "", fmt.Errorf("rendering markdown report: %w", err)
		}
		return buf.String(), nil
	}
	return "", fmt.Errorf("%w: unsupported report format %q", errs.ErrValidation, format)
}

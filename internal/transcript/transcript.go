// Package transcript renders an exported conversation as a downloadable file.
package transcript

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/varsilias/chat-relay/pkg/types"
)

//go:embed templates/*.html
var templatesFS embed.FS

type Format string

const (
	JSON     Format = "json"
	Markdown Format = "md"
	HTML     Format = "html"
)

const stampLayout = "20060102_150405"

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "md", "markdown":
		return Markdown, nil
	case "html":
		return HTML, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f Format) ContentType() string {
	switch f {
	case Markdown:
		return "text/markdown; charset=utf-8"
	case HTML:
		return "text/html; charset=utf-8"
	default:
		return "application/json"
	}
}

// Filename is chat_history_YYYYMMDD_HHMMSS.<ext> in t's location.
func Filename(t time.Time, f Format) string {
	return "chat_history_" + t.Format(stampLayout) + "." + string(f)
}

// MarshalJSON writes h as 2-space indented JSON without HTML escaping or a
// trailing newline.
func MarshalJSON(h types.History) ([]byte, error) {
	if h.Messages == nil {
		h.Messages = []types.Message{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

type Renderer struct {
	tpl    *template.Template
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewRenderer() (*Renderer, error) {
	t, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	md := goldmark.New(
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		goldmark.WithExtensions(
			highlighting.NewHighlighting(
				highlighting.WithStyle("dracula"),
				highlighting.WithFormatOptions(
					chromahtml.WithLineNumbers(false),
				),
			),
		),
	)

	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("code", "pre", "span")
	p.AllowAttrs("style").OnElements("pre", "span") // inline styles from the highlighter

	return &Renderer{tpl: t, md: md, policy: p}, nil
}

// Render produces the file body for f. at is the export time shown in
// human-readable formats.
func (r *Renderer) Render(f Format, h types.History, at time.Time) ([]byte, error) {
	switch f {
	case JSON:
		return MarshalJSON(h)
	case Markdown:
		return markdown(h, at), nil
	case HTML:
		return r.html(h, at)
	}
	return nil, fmt.Errorf("unsupported export format %q", f)
}

func markdown(h types.History, at time.Time) []byte {
	var b bytes.Buffer
	b.WriteString("# Chat history\n\n")
	fmt.Fprintf(&b, "_Exported %s_\n", at.Format(time.DateTime))
	for _, m := range h.Messages {
		fmt.Fprintf(&b, "\n---\n\n**%s**\n\n%s\n", m.Role, strings.TrimSpace(m.Content))
	}
	return b.Bytes()
}

type messageView struct {
	Role string
	HTML template.HTML
}

func (r *Renderer) html(h types.History, at time.Time) ([]byte, error) {
	views := make([]messageView, 0, len(h.Messages))
	for _, m := range h.Messages {
		views = append(views, messageView{Role: string(m.Role), HTML: r.mdHTML(m.Content)})
	}
	var buf bytes.Buffer
	err := r.tpl.ExecuteTemplate(&buf, "transcript.html", map[string]any{
		"Exported": at.Format(time.DateTime),
		"Messages": views,
	})
	if err != nil {
		return nil, fmt.Errorf("render transcript: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) mdHTML(src string) template.HTML {
	var buf bytes.Buffer
	_ = r.md.Convert([]byte(src), &buf)
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes()))
}

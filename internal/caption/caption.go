package caption

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"golazo/internal/types"
)

const defaultTemplate = `⚽ {{ .Title }}
{{- if .Competition }}
🏆 {{ .Competition }}
{{- end }}

{{ .Hashtags }}`

var baseHashtags = []string{"#Football", "#Soccer", "#Highlights", "#Goals"}

// Builder renders post captions from a text/template. The same caption
// is used for primary and fallback delivery.
type Builder struct {
	tmpl *template.Template
}

func NewBuilder(templateText string) (*Builder, error) {
	if templateText == "" {
		templateText = defaultTemplate
	}

	tmpl, err := template.New("caption").Parse(templateText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse caption template: %w", err)
	}

	return &Builder{tmpl: tmpl}, nil
}

func (b *Builder) Build(item *types.ContentItem) (string, error) {
	data := struct {
		Title       string
		Competition string
		Hashtags    string
	}{
		Title:       item.Title,
		Competition: item.Competition,
		Hashtags:    strings.Join(Hashtags(item), " "),
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("caption template execution error: %w", err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// Hashtags produces the tag list for an item: a fixed base set plus a
// tag derived from the competition name.
func Hashtags(item *types.ContentItem) []string {
	tags := make([]string, 0, len(baseHashtags)+1)
	tags = append(tags, baseHashtags...)

	if tag := Tagify(item.Competition); tag != "" {
		tags = append(tags, tag)
	}

	return tags
}

// Tagify turns a free-form name into a single hashtag: title-cased words
// with everything non-alphanumeric dropped.
func Tagify(name string) string {
	if name == "" {
		return ""
	}

	var b strings.Builder
	b.WriteByte('#')
	for _, word := range strings.Fields(name) {
		runes := []rune(word)
		first := true
		for _, r := range runes {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				continue
			}
			if first {
				r = unicode.ToUpper(r)
				first = false
			}
			b.WriteRune(r)
		}
	}

	if b.Len() == 1 {
		return ""
	}
	return b.String()
}

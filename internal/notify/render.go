package notify

import (
	"html/template"
	"strings"

	"reedy/reader/internal/models"
)

// entryTemplate is a minimal default rendering; deployments embedding
// this engine supply their own Renderer.
var entryTemplate = template.Must(template.New("entry").Parse(`<article class="h-entry">
{{- if .Title}}<h2 class="p-name">{{.Title}}</h2>{{end}}
{{- if .AuthorName}}<span class="p-author">{{.AuthorName}}</span>{{end}}
<div class="e-content">{{.Content}}</div>
{{- if .Permalink}}<a class="u-url" href="{{.Permalink}}">permalink</a>{{end}}
</article>`))

type templateRenderer struct{}

// NewTemplateRenderer returns the built-in entry renderer.
func NewTemplateRenderer() Renderer {
	return templateRenderer{}
}

func (templateRenderer) Render(entry *models.Entry) (string, error) {
	var b strings.Builder
	data := struct {
		Title      string
		AuthorName string
		Content    template.HTML
		Permalink  string
	}{
		Title:      entry.Title,
		AuthorName: entry.AuthorName,
		Content:    template.HTML(entry.Content),
		Permalink:  entry.Permalink,
	}
	if err := entryTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

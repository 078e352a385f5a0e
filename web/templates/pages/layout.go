package pages

import (
	"context"
	"html/template"
	"io"

	"github.com/a-h/templ"
)

var layoutTmpl = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.}}</title>
<style>
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",sans-serif;background:#f6f7f9;color:#1d2327;margin:0}
main{max-width:640px;margin:40px auto;padding:0 16px}
.card{background:#fff;border:1px solid #dcdcde;border-radius:8px;padding:24px;margin-bottom:16px}
.button{display:inline-block;background:#ff6243;color:#fff;padding:12px 24px;border-radius:6px;text-decoration:none;font-weight:600}
.muted{color:#646970;font-size:14px}
.badge{display:inline-block;padding:2px 8px;border-radius:4px;font-size:12px;font-weight:600;text-transform:uppercase}
.badge-pending{background:#fcf0d6;color:#8a5a00}
.badge-completed{background:#d7f2de;color:#14692f}
</style>
</head>
<body>
<main>`))

const layoutTail = "</main>\n</body>\n</html>\n"

// Layout wraps body in the shared HTML shell
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := layoutTmpl.Execute(w, title); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, layoutTail)
		return err
	})
}

// ErrorPageProps holds the data rendered by ErrorPage
type ErrorPageProps struct {
	Code         int
	ErrorTitle   string
	ErrorMessage string
	BackLink     string
	BackText     string
}

var errorTmpl = template.Must(template.New("error").Parse(`<div class="card">
<h1>{{.ErrorTitle}}</h1>
<p>{{.ErrorMessage}}</p>
{{if .BackLink}}<p><a href="{{.BackLink}}">{{.BackText}}</a></p>{{end}}
<p class="muted">Error {{.Code}}</p>
</div>`))

func ErrorPage(props ErrorPageProps) templ.Component {
	return Layout(props.ErrorTitle, templ.FromGoHTML(errorTmpl, props))
}

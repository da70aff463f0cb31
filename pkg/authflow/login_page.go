package authflow

import (
	"html/template"
	"net/http"
)

var loginPageTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Sign in - Flowdeck</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      display: flex; align-items: center; justify-content: center;
      min-height: 100vh; margin: 0; background: #f5f7fa;
    }
    .card {
      background: #fff; border-radius: 8px; padding: 48px 40px;
      box-shadow: 0 2px 12px rgba(0,0,0,0.08); text-align: center;
      max-width: 360px;
    }
    h1 { font-size: 20px; margin: 0 0 8px; color: #1a202c; }
    p { color: #718096; font-size: 14px; margin: 0 0 32px; }
    a.signin {
      display: inline-block; padding: 12px 28px; border-radius: 6px;
      background: #2d3748; color: #fff; text-decoration: none;
      font-size: 14px; font-weight: 600;
    }
    a.signin:hover { background: #1a202c; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Flowdeck</h1>
    <p>Sign in to view and manage your pipelines.</p>
    <a class="signin" href="{{.AuthURL}}">Sign in with {{.ProviderLabel}}</a>
  </div>
</body>
</html>
`))

// providerLabels maps provider names to display labels.
var providerLabels = map[string]string{
	"github": "GitHub",
	"oidc":   "SSO",
}

func renderLoginPage(w http.ResponseWriter, provider, authURL string) {
	label, ok := providerLabels[provider]
	if !ok {
		label = provider
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	loginPageTmpl.Execute(w, map[string]string{
		"AuthURL":       authURL,
		"ProviderLabel": label,
	})
}

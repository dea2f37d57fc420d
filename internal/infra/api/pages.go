package api

import (
	"html/template"
	"net/http"
)

var resultPage = template.Must(template.New("checkout").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>{{if .OK}}Purchase Complete{{else}}Checkout Cancelled{{end}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020}
.btn{display:inline-block;margin-top:16px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
.small{font-size:12px;color:#666}
</style>
</head>
<body>
<div class="card">
  {{if .OK}}
  <h2 class="ok">Thanks for your purchase{{if .Plan}} of the {{.Plan}} plan{{end}}!</h2>
  <p>Your access code is on its way. Keep it somewhere safe: it is how you
  sign back in on a new device.</p>
  {{else}}
  <h2 class="fail">Checkout cancelled</h2>
  <p>No payment was taken. You can restart checkout whenever you like.</p>
  {{end}}
  <a class="btn" href="/">Back to the site</a>
  {{if .SessionID}}<div class="small">Reference: {{.SessionID}}</div>{{end}}
</div>
</body>
</html>`))

// handleCheckoutResult renders the landing page the provider redirects to
// after a hosted checkout finishes or is abandoned.
func (s *Server) handleCheckoutResult(ok bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = resultPage.Execute(w, struct {
			OK        bool
			Plan      string
			SessionID string
		}{
			OK:        ok,
			Plan:      q.Get("plan"),
			SessionID: q.Get("session_id"),
		})
	}
}

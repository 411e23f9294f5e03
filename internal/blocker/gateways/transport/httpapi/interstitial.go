package httpapi

import (
	"bytes"
	"html/template"
	"math/rand/v2"
	"net/http"

	"github.com/microcosm-cc/bluemonday"

	"github.com/haukened/dontvisit/internal/blocker/common/urlutil"
	"github.com/haukened/dontvisit/internal/blocker/domain"
)

type quote struct {
	Text   string
	Author string
}

var quotes = []quote{
	{"The way to get started is to quit talking and begin doing.", "Walt Disney"},
	{"Focus is a matter of deciding what things you're not going to do.", "John Carmack"},
	{"The successful warrior is the average person with laser-like focus.", "Bruce Lee"},
	{"Don't confuse being busy with being productive.", "Tim Ferriss"},
	{"Until we can manage time, we can manage nothing else.", "Peter Drucker"},
	{"Either you run the day or the day runs you.", "Jim Rohn"},
	{"Time is what we want most, but what we use worst.", "William Penn"},
	{"The bad news is time flies. The good news is you're the pilot.", "Michael Altshuler"},
	{"What gets measured gets managed.", "Peter Drucker"},
	{"Amateurs sit and wait for inspiration, the rest of us just get up and go to work.", "Thomas Sowell"},
}

// Host and URL hold bluemonday output, which is already escaped text.
type interstitialView struct {
	Host  template.HTML
	URL   template.HTML
	Quote quote
}

var interstitialTmpl = template.Must(template.New("blocked").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{if .Host}}Blocked: {{.Host}} - DontVisit{{else}}Site Blocked - DontVisit{{end}}</title>
<style>
body{margin:0;min-height:100vh;display:flex;align-items:center;justify-content:center;background:#f8f9fa;font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,sans-serif;color:#212529}
main{max-width:520px;padding:40px;background:#fff;border-radius:12px;box-shadow:0 10px 30px rgba(0,0,0,.1);text-align:center}
h1{color:#dc3545;font-size:28px;margin:0 0 16px}
.url{word-break:break-all;font-family:monospace;background:#f1f3f5;padding:8px 12px;border-radius:6px}
.tip{margin:28px 0;color:#6c757d;font-style:italic}
button{padding:12px 24px;border:none;border-radius:6px;font-size:14px;cursor:pointer;margin:0 6px;color:#fff}
#go-back{background:#28a745}
#close-tab{background:#6c757d}
</style>
</head>
<body>
<main>
<h1>Site Blocked</h1>
<p>This site is on your block list.</p>
{{if .URL}}<p class="url">{{.URL}}</p>{{end}}
<p class="tip" id="productivity-tip-text">&ldquo;{{.Quote.Text}}&rdquo;<br>- {{.Quote.Author}}</p>
<button id="go-back" type="button">Go Back</button>
<button id="close-tab" type="button">Close Tab</button>
</main>
<script>
document.getElementById("go-back").addEventListener("click", function () {
  if (window.history.length > 1) { window.history.back(); } else { window.location.href = "about:blank"; }
});
document.getElementById("close-tab").addEventListener("click", function () { window.close(); });
</script>
</body>
</html>
`))

// strictPolicy strips all markup from the displayed URL.
var strictPolicy = bluemonday.StrictPolicy()

// handleInterstitial renders the blocked page for ?blocked=<url>. It only
// displays the URL and never feeds it back into blocking.
func (s *Server) handleInterstitial(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("blocked")
	view := interstitialView{Quote: quotes[rand.IntN(len(quotes))]}
	if raw != "" {
		view.URL = template.HTML(strictPolicy.Sanitize(raw))
		if host, err := urlutil.Hostname(raw); err == nil {
			view.Host = template.HTML(strictPolicy.Sanitize(host))
		}
		tab := domain.TabID(r.URL.Query().Get("tab"))
		s.svc.RecordActivity(r.Context(), domain.NewActivityEvent(domain.ActivityBlockedPageViewed, tab, raw, s.clock.Now()))
	}

	var buf bytes.Buffer
	if err := interstitialTmpl.Execute(&buf, view); err != nil {
		s.logger.Error(map[string]any{"error": err}, "interstitial render failed")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

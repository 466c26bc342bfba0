package handler

import (
	"html/template"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"eventpay/internal/presenter"
	"eventpay/internal/returnflow"
)

// ReturnPageConfig controls the return page.
type ReturnPageConfig struct {
	HomePath     string
	Countdown    time.Duration
	SupportEmail string
	SupportPhone string
}

// ReturnFlowHandler renders the page the customer lands on after the gateway.
type ReturnFlowHandler struct {
	cfg    ReturnPageConfig
	tmpl   *template.Template
	now    func() time.Time
	logger *zap.Logger
}

func NewReturnFlowHandler(cfg ReturnPageConfig, logger *zap.Logger) *ReturnFlowHandler {
	if cfg.HomePath == "" {
		cfg.HomePath = "/"
	}
	if cfg.Countdown <= 0 {
		cfg.Countdown = returnflow.DefaultCountdown
	}
	return &ReturnFlowHandler{
		cfg:    cfg,
		tmpl:   template.Must(template.New("return").Parse(returnPageHTML)),
		now:    time.Now,
		logger: logger,
	}
}

type returnPage struct {
	Outcome      returnflow.Outcome
	Badge        presenter.BadgeInfo
	HomePath     string
	RefreshURL   string
	Seconds      int
	DeadlineMS   int64
	SupportEmail string
	SupportPhone string
	SupportTel   string
}

// Show renders the outcome named by the query string.
// GET /payment/return
func (h *ReturnFlowHandler) Show(c echo.Context) error {
	q := c.QueryParams()
	out := returnflow.Parse(q)

	page := returnPage{
		Outcome:      out,
		Badge:        presenter.Badge(badgeStatus(out.Kind)),
		HomePath:     h.cfg.HomePath,
		RefreshURL:   refreshURL(c.Request().URL.Path, q),
		SupportEmail: h.cfg.SupportEmail,
		SupportPhone: h.cfg.SupportPhone,
		SupportTel:   strings.Map(dialable, h.cfg.SupportPhone),
	}
	if out.Kind == returnflow.KindSuccess {
		page.Seconds = int((h.cfg.Countdown + time.Second - 1) / time.Second)
		page.DeadlineMS = h.now().Add(h.cfg.Countdown).UnixMilli()
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().Header().Set("Cache-Control", "no-store")
	c.Response().WriteHeader(http.StatusOK)
	if err := h.tmpl.Execute(c.Response().Writer, page); err != nil {
		h.logger.Error("Failed to render return page", zap.Error(err))
		return err
	}
	return nil
}

func badgeStatus(k returnflow.Kind) string {
	switch k {
	case returnflow.KindSuccess:
		return "completed"
	case returnflow.KindFailed:
		return "failed"
	case returnflow.KindPending:
		return "pending"
	default:
		return ""
	}
}

func refreshURL(p string, q url.Values) string {
	p = path.Clean("/" + p)
	if enc := q.Encode(); enc != "" {
		return p + "?" + enc
	}
	return p
}

func dialable(r rune) rune {
	if r == '+' || (r >= '0' && r <= '9') {
		return r
	}
	return -1
}

const returnPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    {{if eq .Outcome.Kind "success"}}<meta http-equiv="refresh" content="{{.Seconds}};url={{.HomePath}}">{{end}}
    <title>{{.Outcome.Title}}</title>
    <style>
        body { font-family: system-ui, sans-serif; background: #f5f5f5; margin: 0; padding: 20px; display: flex; justify-content: center; align-items: center; min-height: 100vh; }
        .box { background: #fff; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); padding: 40px; text-align: center; max-width: 420px; width: 100%; }
        .badge { display: inline-block; padding: 4px 12px; border-radius: 999px; font-size: 14px; margin-bottom: 16px; }
        .badge-green { background: #dcfce7; color: #166534; }
        .badge-red { background: #fee2e2; color: #991b1b; }
        .badge-yellow { background: #fef9c3; color: #854d0e; }
        .badge-gray { background: #f3f4f6; color: #374151; }
        h1 { color: #333; margin-bottom: 20px; }
        p { color: #666; margin-bottom: 10px; }
        .actions a, .actions button { display: inline-block; margin: 8px 4px 0; padding: 10px 18px; border-radius: 6px; border: 1px solid #ddd; background: #fff; color: #333; text-decoration: none; cursor: pointer; }
    </style>
</head>
<body>
    <div class="box" data-outcome="{{.Outcome.Kind}}">
        <span class="badge badge-{{.Badge.Color}}" data-icon="{{.Badge.Icon}}">{{.Badge.Label}}</span>
        <h1>{{.Outcome.Title}}</h1>
        <p>{{.Outcome.Message}}</p>
        {{if .Outcome.Booking}}<p>Booking ID: <strong>{{.Outcome.Booking}}</strong></p>{{end}}
{{- if eq .Outcome.Kind "success"}}
        <p>Redirecting to home in <span id="countdown" data-deadline="{{.DeadlineMS}}">{{.Seconds}}</span> seconds...</p>
        <div class="actions"><a id="go-home" href="{{.HomePath}}">Go to Home Now</a></div>
        <script>
        (function () {
            var el = document.getElementById("countdown");
            var deadline = parseInt(el.getAttribute("data-deadline"), 10);
            var home = document.getElementById("go-home").getAttribute("href");
            var done = false;
            function go() { if (!done) { done = true; window.location.replace(home); } }
            var timer = setTimeout(go, Math.max(0, deadline - Date.now()));
            function paint() {
                var left = Math.max(0, Math.ceil((deadline - Date.now()) / 1000));
                el.textContent = left;
                if (!done && left > 0) { requestAnimationFrame(paint); }
            }
            requestAnimationFrame(paint);
            document.getElementById("go-home").addEventListener("click", function (e) { e.preventDefault(); clearTimeout(timer); go(); });
            window.addEventListener("pagehide", function () { clearTimeout(timer); });
        })();
        </script>
{{- else if eq .Outcome.Kind "failed"}}
        {{if .Outcome.HumanError}}<p class="error">Reason: {{.Outcome.HumanError}}</p>{{end}}
        <div class="actions">
            <a href="{{.HomePath}}">Try Again</a>
            {{if .SupportEmail}}<a href="mailto:{{.SupportEmail}}">Contact Support</a>{{else if .SupportTel}}<a href="tel:{{.SupportTel}}">Contact Support</a>{{end}}
        </div>
        {{if .SupportPhone}}<p>Support: {{.SupportPhone}}</p>{{end}}
{{- else if eq .Outcome.Kind "pending"}}
        <div class="actions"><a href="{{.RefreshURL}}">Refresh Status</a></div>
{{- else}}
        <div class="actions"><a href="{{.HomePath}}">Return Home</a></div>
{{- end}}
    </div>
</body>
</html>`

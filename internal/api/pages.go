package api

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/sqlchat/sqlchat/internal/chatbot"
	"github.com/sqlchat/sqlchat/internal/config"
)

// FormFailureMessage is shown on the chat page when a query cannot be answered.
const FormFailureMessage = "Lo siento, no pude procesar tu consulta."

//go:embed templates/*.html
var templateFS embed.FS

type pageData struct {
	Title     string
	UserInput string
	Answer    *pageAnswer
}

type pageAnswer struct {
	Success bool
	// Table is already escaped by the result formatter.
	Table   template.HTML
	Text    string
	Query   string
	Detail  string
	TraceID string
}

type pageRenderer struct {
	templates *template.Template
}

func newPageRenderer() *pageRenderer {
	return &pageRenderer{templates: template.Must(template.ParseFS(templateFS, "templates/*.html"))}
}

func (p *pageRenderer) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := p.templates.ExecuteTemplate(&buf, name, data); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "TEMPLATE_FAILED", "failed to render page", false, nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func handleFormQuery(cfg config.Config, deps Dependencies, pages *pageRenderer, w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
		return
	}
	input := strings.TrimSpace(r.PostForm.Get("user_input"))
	if input == "" {
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
		return
	}

	data := pageData{Title: "SQLChat", UserInput: input}
	if deps.Chat == nil {
		data.Answer = &pageAnswer{Text: FormFailureMessage}
		pages.render(w, r, http.StatusServiceUnavailable, "chat.html", data)
		return
	}

	response, err := deps.Chat.Process(r.Context(), chatbot.Request{
		Text:           input,
		AllowDirectSQL: allowDirectSQL(cfg, r),
		TenantID:       tenantFromRequest(r),
	})
	if errors.Is(err, chatbot.ErrEmptyQuery) {
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
		return
	}
	if err != nil {
		data.Answer = &pageAnswer{Text: FormFailureMessage}
		pages.render(w, r, http.StatusOK, "chat.html", data)
		return
	}

	data.Answer = answerFromResponse(response)
	pages.render(w, r, http.StatusOK, "chat.html", data)
}

func answerFromResponse(response chatbot.Response) *pageAnswer {
	answer := &pageAnswer{Success: response.Success, Query: response.Query, TraceID: response.TraceID}
	switch {
	case !response.Success:
		answer.Text = FormFailureMessage
		answer.Detail = response.Response
	case response.Format == chatbot.FormatHTML:
		answer.Table = template.HTML(response.Response)
	default:
		answer.Text = response.Response
	}
	return answer
}

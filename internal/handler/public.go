package handler

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"invitation-app/internal/delivery"
	"invitation-app/internal/events"
	"invitation-app/internal/logging"
	"invitation-app/internal/models"
	"invitation-app/internal/ratelimit"
)

// EventStore is the part of the event repository the public routes need.
type EventStore interface {
	ResolveToken(token string) (models.Event, models.Invitee, error)
	ResolveShortToken(shortToken string) (models.Event, models.Invitee, error)
	UpdateRSVP(token string, status models.Status) (models.Event, models.Invitee, error)
}

// Notifier is told when a guest changes their answer.
type Notifier interface {
	RSVPChanged(ctx context.Context, ev models.Event, inv models.Invitee, status models.Status) error
}

type PublicConfig struct {
	UploadsDir string
	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP instead of the connection.
	TrustProxyHeaders bool
}

// PublicHandler serves the unauthenticated RSVP routes.
type PublicHandler struct {
	events   EventStore
	renderer *delivery.Renderer
	notifier Notifier
	limiter  *ratelimit.Limiter
	cfg      PublicConfig
	log      zerolog.Logger
}

func NewPublicHandler(store EventStore, renderer *delivery.Renderer, notifier Notifier, limiter *ratelimit.Limiter, cfg PublicConfig, log zerolog.Logger) *PublicHandler {
	return &PublicHandler{
		events:   store,
		renderer: renderer,
		notifier: notifier,
		limiter:  limiter,
		cfg:      cfg,
		log:      log.With().Str("component", "public").Logger(),
	}
}

// Router returns the public routes, all behind the rate limiter.
func (h *PublicHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.rateLimit)
	r.HandleFunc("/r/{short}", h.ShortLink).Methods(http.MethodGet)
	r.HandleFunc("/rsvp/{token}", h.Invitation).Methods(http.MethodGet)
	r.HandleFunc("/rsvp/{token}/respond", h.Respond).Methods(http.MethodPost)
	r.HandleFunc("/uploads/{name}", h.Upload).Methods(http.MethodGet)
	return r
}

// InvitationResponse is the JSON form of an invitation page.
type InvitationResponse struct {
	Event          events.PublicEvent   `json:"event"`
	Invitee        events.PublicInvitee `json:"invitee"`
	InvitationHTML string               `json:"invitation_html"`
	Responded      string               `json:"responded,omitempty"`
}

// RespondRequest is the JSON body accepted by Respond.
type RespondRequest struct {
	Status string `json:"status"`
}

// ShortLink redirects a text message link to the full invitation.
func (h *PublicHandler) ShortLink(w http.ResponseWriter, r *http.Request) {
	_, inv, err := h.events.ResolveShortToken(mux.Vars(r)["short"])
	if err != nil {
		h.lookupError(w, err)
		return
	}
	http.Redirect(w, r, "/rsvp/"+inv.Token, http.StatusFound)
}

// Invitation shows the invitation. Browsers get HTML, other clients JSON.
func (h *PublicHandler) Invitation(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	ev, inv, err := h.events.ResolveToken(token)
	if err != nil {
		h.lookupError(w, err)
		return
	}

	page := delivery.Page{RSVPURL: "#rsvp-form"}
	if ev.Photo != nil && *ev.Photo != "" {
		page.PhotoURL = "/uploads/" + *ev.Photo
	}
	invitation := delivery.Render(h.renderer.Template(ev.Template), ev, inv, page)
	responded := r.URL.Query().Get("responded")

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := rsvpPage.Execute(w, rsvpPageData{
			Invitation: template.HTML(invitation),
			Token:      token,
			Status:     string(inv.Status),
			Responded:  responded,
			Statuses:   []models.Status{models.StatusAccepted, models.StatusMaybe, models.StatusDeclined},
		}); err != nil {
			h.log.Error().Err(err).Msg("render rsvp page")
		}
		return
	}

	writeJSON(w, http.StatusOK, InvitationResponse{
		Event:          events.PublicView(ev),
		Invitee:        events.PublicInviteeView(inv),
		InvitationHTML: invitation,
		Responded:      responded,
	})
}

// Respond records the guest's answer and tells the organizer when it
// changed. Form posts are redirected back to the invitation.
func (h *PublicHandler) Respond(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	isJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")

	var status string
	if isJSON {
		var req RespondRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		status = req.Status
	} else {
		status = r.PostFormValue("status")
	}

	log := h.log.With().Str("token", logging.Token(token)).Str("status", status).Logger()
	if !models.Status(status).IsResponse() {
		log.Info().Msg("invalid rsvp status")
		if isJSON {
			writeError(w, http.StatusBadRequest, "status must be accepted, declined or maybe")
			return
		}
		http.Redirect(w, r, "/rsvp/"+token, http.StatusSeeOther)
		return
	}

	_, current, err := h.events.ResolveToken(token)
	if err != nil {
		h.lookupError(w, err)
		return
	}
	ev, inv, err := h.events.UpdateRSVP(token, models.Status(status))
	if err != nil {
		h.lookupError(w, err)
		return
	}
	log.Info().Str("event_id", ev.ID).Str("previous", string(current.Status)).Msg("rsvp updated")

	if current.Status != inv.Status && h.notifier != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 30*time.Second)
		if err := h.notifier.RSVPChanged(ctx, ev, inv, inv.Status); err != nil {
			log.Warn().Err(err).Msg("admin notification failed")
		}
		cancel()
	}

	if isJSON {
		writeJSON(w, http.StatusOK, events.PublicInviteeView(inv))
		return
	}
	http.Redirect(w, r, "/rsvp/"+token+"?responded="+status, http.StatusSeeOther)
}

// Upload serves an event photo from the uploads directory.
func (h *PublicHandler) Upload(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	path := filepath.Join(h.cfg.UploadsDir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	http.ServeFile(w, r, path)
}

func (h *PublicHandler) lookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, events.ErrNotFound) {
		writeError(w, http.StatusNotFound, "invitation not found")
		return
	}
	h.log.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *PublicHandler) rateLimit(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(h.limiter.Window().Seconds()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, h.cfg.TrustProxyHeaders)
		if !h.limiter.Allow(ip) {
			h.log.Debug().Str("ip", ip).Str("path", r.URL.Path).Msg("rate limited")
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the connection's address, or the first proxy-reported
// address when proxy headers are trusted.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type rsvpPageData struct {
	Invitation template.HTML
	Token      string
	Status     string
	Responded  string
	Statuses   []models.Status
}

var rsvpPage = template.Must(template.New("rsvp").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>RSVP</title></head>
<body>
{{.Invitation}}
<form id="rsvp-form" method="post" action="/rsvp/{{.Token}}/respond">
  {{if .Responded}}<p>Thanks, your answer ({{.Responded}}) has been saved.</p>{{end}}
  {{range .Statuses}}<button type="submit" name="status" value="{{.}}"{{if eq (print .) $.Status}} aria-pressed="true"{{end}}>{{.}}</button>
  {{end}}
</form>
</body>
</html>
`))

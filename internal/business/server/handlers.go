package server

import (
	"encoding/json"
	"errors"
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/bcc-code/auth-gateway/internal/auth"
	"github.com/bcc-code/auth-gateway/internal/config"
	"github.com/bcc-code/auth-gateway/internal/serviceerr"
)

const markerCookieMaxAge = 10 * 365 * 24 * 3600

type authHandler struct {
	manager *auth.Manager

	sessionCookieTemplate config.CookieTemplate
	markerCookieName      string
	defaultLandingURL     string
}

func newAuthHandler(cfg *config.Config, manager *auth.Manager) *authHandler {
	return &authHandler{
		manager:               manager,
		sessionCookieTemplate: cfg.Auth.SessionCookieTemplate,
		markerCookieName:      cfg.Auth.MarkerCookieName,
		defaultLandingURL:     cfg.Auth.DefaultLandingURL,
	}
}

func (h *authHandler) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/login", h.login)
	mux.HandleFunc("GET /auth/callback", h.callback)
	mux.HandleFunc("GET /auth/logout", h.logout)
	mux.HandleFunc("POST /auth/backchannel-logout", h.backchannelLogout)
	mux.HandleFunc("GET /auth/session", h.session)
	mux.HandleFunc("GET /auth/userinfo", h.userinfo)

	return mux
}

func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slogctx.Debug(ctx, "login() called")
	defer slogctx.Debug(ctx, "login() completed")

	uri, err := h.manager.MakeAuthURI(ctx, r.URL.Query().Get("return_url"))
	if err != nil {
		slogctx.Error(ctx, "Failed to build auth URI", "error", err)
		h.writeError(w, err)

		return
	}

	// The redirect carries a single-use state; caches must never replay it.
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, uri, http.StatusFound)
}

func (h *authHandler) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slogctx.Debug(ctx, "callback() called")
	defer slogctx.Debug(ctx, "callback() completed")

	q := r.URL.Query()

	// A provider-reported error comes before anything else. The error code
	// is matched against the known OAuth2 codes and the description is
	// replaced, so no attacker-chosen text ever reaches the response.
	if errParam := q.Get("error"); errParam != "" {
		slogctx.Warn(ctx, "Provider returned an error on callback",
			"error", errParam, "error_description", q.Get("error_description"))
		h.writeError(w, &serviceerr.Error{
			Err:         sanitizeProviderCode(errParam),
			Description: "the identity provider rejected the login",
		})

		return
	}

	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		h.writeError(w, &serviceerr.Error{Err: serviceerr.CodeInvalidRequest, Description: "state and code are required"})

		return
	}

	result, err := h.manager.FinalizeLogin(ctx, state, code)
	if err != nil {
		if errors.Is(err, serviceerr.ErrStateExpired) {
			// Usually a replayed or refreshed callback; the visitor most
			// likely has a session already, so send them on their way.
			slogctx.Info(ctx, "Callback with expired or used state")
			http.Redirect(w, r, h.defaultLandingURL, http.StatusFound)

			return
		}

		slogctx.Error(ctx, "Failed to finalize login", "error", err)
		h.writeError(w, err)

		return
	}

	sessionCookie := h.sessionCookieTemplate.ToCookie(result.TokenID)
	sessionCookie.Expires = result.Expiry
	http.SetCookie(w, sessionCookie)

	http.SetCookie(w, &http.Cookie{
		Name:     h.markerCookieName,
		Value:    "1",
		Path:     "/",
		MaxAge:   markerCookieMaxAge,
		Secure:   sessionCookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, result.ReturnURL, http.StatusFound)
}

func (h *authHandler) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slogctx.Debug(ctx, "logout() called")
	defer slogctx.Debug(ctx, "logout() completed")

	if err := h.manager.Logout(ctx, h.tokenID(r)); err != nil {
		slogctx.Error(ctx, "Failed to log out", "error", err)
		h.writeError(w, err)

		return
	}

	reset := h.sessionCookieTemplate.ToCookie("")
	reset.MaxAge = -1
	http.SetCookie(w, reset)

	http.SetCookie(w, &http.Cookie{
		Name:   h.markerCookieName,
		Path:   "/",
		MaxAge: -1,
	})

	http.Redirect(w, r, h.manager.MakeLogoutURI(), http.StatusFound)
}

func (h *authHandler) backchannelLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slogctx.Debug(ctx, "backchannelLogout() called")
	defer slogctx.Debug(ctx, "backchannelLogout() completed")

	if err := r.ParseForm(); err != nil {
		slogctx.Warn(ctx, "Failed to parse backchannel logout form", "error", err)
	}

	err := h.manager.BackchannelLogout(ctx, r.PostFormValue("logout_token"), r.FormValue("state"))
	if err != nil {
		// Answer success regardless so the provider does not retry forever;
		// the sweep picks up anything left behind.
		slogctx.Error(ctx, "Failed to process backchannel logout", "error", err)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *authHandler) session(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenID := h.tokenID(r)

	type sessionModel struct {
		Authenticated bool   `json:"authenticated"`
		Level         string `json:"level"`
		PersonUID     string `json:"person_uid,omitempty"`
	}

	model := sessionModel{
		Authenticated: h.manager.SessionValid(ctx, tokenID),
		Level:         h.manager.CurrentLevel(ctx, tokenID).String(),
	}
	if personUID, ok := h.manager.CurrentPersonUID(ctx, tokenID); ok {
		model.PersonUID = personUID
	}

	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, http.StatusOK, model)
}

func (h *authHandler) userinfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slogctx.Debug(ctx, "userinfo() called")
	defer slogctx.Debug(ctx, "userinfo() completed")

	info, err := h.manager.Userinfo(ctx, h.tokenID(r))
	if err != nil {
		slogctx.Warn(ctx, "Failed to fetch userinfo", "error", err)
		h.writeError(w, err)

		return
	}

	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, http.StatusOK, info)
}

func (h *authHandler) tokenID(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionCookieTemplate.Name)
	if err != nil {
		return ""
	}

	return cookie.Value
}

type errorModel struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (h *authHandler) writeError(w http.ResponseWriter, err error) {
	var serviceErr *serviceerr.Error
	if !errors.As(err, &serviceErr) {
		serviceErr = serviceerr.ErrUnknown
	}

	h.writeJSON(w, serviceErr.HTTPStatus(), errorModel{
		Error:            string(serviceErr.Err),
		ErrorDescription: serviceErr.Description,
	})
}

func (h *authHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// sanitizeProviderCode maps a provider-supplied error code onto the fixed
// set of OAuth2 codes. Anything else becomes the unknown code.
func sanitizeProviderCode(code string) serviceerr.Code {
	switch c := serviceerr.Code(code); c {
	case serviceerr.CodeInvalidRequest,
		serviceerr.CodeUnauthorizedClient,
		serviceerr.CodeAccessDenied,
		serviceerr.CodeServerError,
		serviceerr.CodeTemporarilyUnavailable,
		serviceerr.CodeInvalidClient,
		serviceerr.CodeInvalidGrant:
		return c
	default:
		return serviceerr.CodeUnknown
	}
}

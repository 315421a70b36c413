package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/resumelens/resume-analyzer/internal/auth"
	"github.com/resumelens/resume-analyzer/internal/metrics"
	"github.com/resumelens/resume-analyzer/internal/model"
	"github.com/resumelens/resume-analyzer/internal/service"
)

const (
	stateCookieName = "oauth_state"
	stateCookieTTL  = 10 * time.Minute

	maxAuthBodyBytes = 1 << 20

	// Redirect error flags read by the frontend's /login page.
	oauthErrorState  = "oauth_state"
	oauthErrorFailed = "oauth_failed"
)

// Authenticator is the part of service.AuthService the handler uses.
type Authenticator interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	ResolveOAuthProfile(ctx context.Context, p *auth.Profile) (*service.OAuthResult, error)
}

// OAuthProvider is implemented by *auth.OAuthProvider.
type OAuthProvider interface {
	Kind() model.Provider
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.Profile, error)
}

// CookieConfig controls the auth and state cookies.
type CookieConfig struct {
	Secure bool          // true in production (HTTPS only)
	MaxAge time.Duration // lifetime of the auth cookie, equal to the token TTL
}

// AuthHandler serves /api/auth.
//
// HANDLER RESPONSIBILITIES:
//   - Register / Login  → JSON in, {success, token, user} out, auth cookie set
//   - Logout            → overwrite the auth cookie with an expired one
//   - Me                → echo the user the Session Gate attached
//   - OAuthStart        → redirect to the provider's consent screen
//   - OAuthCallback     → check state, exchange code, link, redirect to the SPA
type AuthHandler struct {
	auth        Authenticator
	providers   map[model.Provider]OAuthProvider
	cookies     CookieConfig
	frontendURL string
	metrics     metrics.Recorder
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. Providers that are not configured
// are simply left out; their routes answer 404. rec may be nil.
func NewAuthHandler(
	authn Authenticator,
	providers []OAuthProvider,
	cookies CookieConfig,
	frontendURL string,
	rec metrics.Recorder,
	logger *slog.Logger,
) *AuthHandler {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	byKind := make(map[model.Provider]OAuthProvider, len(providers))
	for _, p := range providers {
		byKind[p.Kind()] = p
	}
	return &AuthHandler{
		auth:        authn,
		providers:   byKind,
		cookies:     cookies,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		metrics:     rec,
		logger:      logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Success bool             `json:"success"`
	Token   string           `json:"token"`
	User    model.PublicUser `json:"user"`
}

type userResponse struct {
	Success bool             `json:"success"`
	User    model.PublicUser `json:"user"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Register creates a local account.
//
// HTTP: POST /api/auth/register → 201 {success, token, user}
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, maxAuthBodyBytes, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setAuthCookie(w, res.Token)
	writeJSON(w, h.logger, http.StatusCreated, authResponse{Success: true, Token: res.Token, User: res.User.Public()})
}

// Login authenticates with email and password.
//
// HTTP: POST /api/auth/login → 200 {success, token, user}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, maxAuthBodyBytes, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setAuthCookie(w, res.Token)
	writeJSON(w, h.logger, http.StatusOK, authResponse{Success: true, Token: res.Token, User: res.User.Public()})
}

// Logout clears the auth cookie.
//
// HTTP: POST /api/auth/logout → 200 {success, message}
//
// Tokens are stateless, so this only removes the browser's copy. A token
// saved elsewhere stays valid until it expires.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "none",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, h.logger, http.StatusOK, messageResponse{Success: true, Message: "Logged out successfully"})
}

// Me returns the authenticated user.
//
// HTTP: GET /api/auth/me (behind RequireAuth) → 200 {success, user}
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		// Only reachable if the route was mounted without the gate.
		writeJSON(w, h.logger, http.StatusUnauthorized, ErrorResponse{Error: "Not authorized"})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, userResponse{Success: true, User: user.Public()})
}

// OAuthStart redirects the browser to the provider's consent screen.
//
// HTTP: GET /api/auth/{provider}
//
// CSRF PROTECTION VIA STATE:
// A random state goes both into a short-lived http-only cookie and into the
// consent URL. The callback only proceeds when the two match, which proves
// the flow was started from this browser.
func (h *AuthHandler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// OAuthCallback completes the flow started by OAuthStart.
//
// HTTP: GET /api/auth/{provider}/callback?code=…&state=…
//
// FLOW:
//  1. Compare the state parameter with the state cookie, then clear it
//  2. Stop if the provider reported an error (user denied consent)
//  3. Exchange the code for the provider profile
//  4. Resolve the profile to a local user (authenticate, link or create)
//  5. Set the auth cookie and redirect to FRONTEND_URL?token=<jwt>
//
// The browser is mid-redirect, so failures are never JSON: they redirect to
// FRONTEND_URL/login?error=oauth_state or ?error=oauth_failed.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	kind := string(provider.Kind())
	query := r.URL.Query()

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || query.Get("state") != stateCookie.Value {
		h.logger.Warn("oauth callback: state mismatch", slog.String("provider", kind))
		h.metrics.RecordOAuthCallback(kind, "state_mismatch")
		h.redirectLoginError(w, r, oauthErrorState)
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
	})

	if denied := query.Get("error"); denied != "" {
		h.logger.Info("oauth callback: provider returned error",
			slog.String("provider", kind),
			slog.String("error", denied),
		)
		h.metrics.RecordOAuthCallback(kind, "denied")
		h.redirectLoginError(w, r, oauthErrorFailed)
		return
	}

	profile, err := provider.Exchange(r.Context(), query.Get("code"))
	if err != nil {
		h.logger.Error("oauth callback: exchange failed",
			slog.String("provider", kind),
			slog.String("error", err.Error()),
		)
		h.metrics.RecordOAuthCallback(kind, "failed")
		h.redirectLoginError(w, r, oauthErrorFailed)
		return
	}

	res, err := h.auth.ResolveOAuthProfile(r.Context(), profile)
	if err != nil {
		h.logger.Error("oauth callback: resolving user failed",
			slog.String("provider", kind),
			slog.String("error", err.Error()),
		)
		h.metrics.RecordOAuthCallback(kind, "failed")
		h.redirectLoginError(w, r, oauthErrorFailed)
		return
	}

	h.metrics.RecordOAuthCallback(kind, string(res.Outcome))
	h.setAuthCookie(w, res.Token)
	http.Redirect(w, r, h.frontendWithQuery("", "token", res.Token), http.StatusSeeOther)
}

// provider resolves the {provider} URL parameter, answering 404 for a
// provider that is unknown or not configured.
func (h *AuthHandler) provider(w http.ResponseWriter, r *http.Request) (OAuthProvider, bool) {
	name := model.Provider(chi.URLParam(r, "provider"))
	p, ok := h.providers[name]
	if !ok {
		writeJSON(w, h.logger, http.StatusNotFound, ErrorResponse{Error: "OAuth provider not available"})
		return nil, false
	}
	return p, true
}

func (h *AuthHandler) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookies.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) redirectLoginError(w http.ResponseWriter, r *http.Request, flag string) {
	http.Redirect(w, r, h.frontendWithQuery("/login", "error", flag), http.StatusSeeOther)
}

// frontendWithQuery builds FRONTEND_URL + path with key=value added to any
// query the frontend URL already has.
func (h *AuthHandler) frontendWithQuery(path, key, value string) string {
	u, err := url.Parse(h.frontendURL + path)
	if err != nil {
		return h.frontendURL + path + "?" + url.Values{key: {value}}.Encode()
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

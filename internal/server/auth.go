package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/vibeops/internal/runtime"
	"github.com/mohammad-safakhou/vibeops/internal/store"
)

type adminStore interface {
	GetOpsAdminByEmail(ctx context.Context, email string) (store.OpsAdmin, bool, error)
}

// AuthHandler issues ops console tokens.
type AuthHandler struct {
	store        adminStore
	secret       []byte
	ttl          time.Duration
	secureCookie bool
}

func NewAuthHandler(st adminStore, secret []byte, ttl time.Duration, secureCookie bool) *AuthHandler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthHandler{store: st, secret: secret, ttl: ttl, secureCookie: secureCookie}
}

func (a *AuthHandler) Register(g *echo.Group) {
	g.POST("/login", a.login)
	g.POST("/logout", a.logout)
}

// login
//
//	@Summary	Ops console login
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		AuthLoginRequest	true	"Login payload"
//	@Success	200		{object}	TokenResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	401		{object}	HTTPError
//	@Router		/api/auth/login [post]
func (a *AuthHandler) login(c echo.Context) error {
	var req AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := c.Validate(&req); err != nil {
		return err
	}
	admin, ok, err := a.store.GetOpsAdminByEmail(c.Request().Context(), req.Email)
	if err != nil {
		return httpError(err)
	}
	if !ok || bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	signed, err := runtime.SignJWT(admin.ID, a.secret, a.ttl, admin.Scopes...)
	if err != nil {
		return httpError(err)
	}
	cookie := new(http.Cookie)
	cookie.Name = runtime.AuthCookie
	cookie.Value = signed
	cookie.Path = "/"
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteLaxMode
	cookie.Secure = a.secureCookie
	cookie.Expires = time.Now().Add(a.ttl)
	c.SetCookie(cookie)
	// also return token for Bearer flows
	c.Response().Header().Set("Authorization", "Bearer "+signed)
	scopes := admin.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: signed, Scopes: scopes})
}

func (a *AuthHandler) logout(c echo.Context) error {
	cookie := new(http.Cookie)
	cookie.Name = runtime.AuthCookie
	cookie.Value = ""
	cookie.Path = "/"
	cookie.MaxAge = -1
	c.SetCookie(cookie)
	return c.NoContent(http.StatusOK)
}

// actor returns the authenticated subject set by the auth middleware.
func actor(c echo.Context) string {
	if v, ok := c.Get("user_id").(string); ok && v != "" {
		return v
	}
	if sub, ok := runtime.SubjectFromContext(c.Request().Context()); ok {
		return sub
	}
	return ""
}

package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"whop_checkout_echo/internal/config"
	"whop_checkout_echo/internal/middleware"
	"whop_checkout_echo/web/templates/pages"
)

const sessionExpiry = 24 * time.Hour * 5

// TokenExchanger is the part of *auth.Client used to turn an ID token into a session cookie
type TokenExchanger interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
}

// AuthHandler handles admin sign-in
type AuthHandler struct {
	authClient TokenExchanger
	firebase   config.FirebaseConfig
	secure     bool
}

func NewAuthHandler(authClient TokenExchanger, firebase config.FirebaseConfig, secure bool) *AuthHandler {
	return &AuthHandler{authClient: authClient, firebase: firebase, secure: secure}
}

// LoginPage renders the login page
func (h *AuthHandler) LoginPage(c echo.Context) error {
	props := pages.LoginPageProps{
		FirebaseAPIKey:     h.firebase.APIKey,
		FirebaseAuthDomain: h.firebase.AuthDomain,
		FirebaseProjectID:  h.firebase.ProjectID,
	}
	if c.QueryParam("error") == "auth_not_configured" {
		props.Error = "Sign-in is not configured on this server."
	}
	return render(c, http.StatusOK, pages.LoginPage(props))
}

// HandleLogin verifies the Firebase ID token and creates a session cookie
func (h *AuthHandler) HandleLogin(c echo.Context) error {
	if h.authClient == nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Firebase not initialized",
		})
	}

	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Missing authorization header",
		})
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Invalid authorization format",
		})
	}

	ctx := c.Request().Context()
	if _, err := h.authClient.VerifyIDToken(ctx, tokenString); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Invalid token",
		})
	}

	cookieValue, err := h.authClient.SessionCookie(ctx, tokenString, sessionExpiry)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to create session",
		})
	}

	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    cookieValue,
		MaxAge:   int(sessionExpiry.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, map[string]string{
		"status": "success",
	})
}

// HandleLogout clears the session cookie
func (h *AuthHandler) HandleLogout(c echo.Context) error {
	c.SetCookie(middleware.ClearSessionCookie())
	return c.JSON(http.StatusOK, map[string]string{
		"status": "logged out",
	})
}

package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fakeVerifier struct {
	token *auth.Token
	err   error
}

func (f fakeVerifier) VerifySessionCookie(ctx context.Context, cookie string) (*auth.Token, error) {
	return f.token, f.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func serveAdmin(verifier SessionVerifier, cookie string) (*httptest.ResponseRecorder, echo.Context) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/admin/whop", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequireAuth(verifier)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	_ = h(c)
	return rec, c
}

func TestRequireAuth(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		rec, _ := serveAdmin(nil, "abc")
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Equal(t, "/login?error=auth_not_configured", rec.Header().Get("Location"))
	})

	t.Run("no cookie", func(t *testing.T) {
		rec, _ := serveAdmin(fakeVerifier{}, "")
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
	})

	t.Run("invalid cookie is cleared", func(t *testing.T) {
		rec, _ := serveAdmin(fakeVerifier{err: errors.New("expired")}, "abc")
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
	})

	t.Run("valid", func(t *testing.T) {
		token := &auth.Token{UID: "u1", Claims: map[string]interface{}{"email": "admin@example.com"}}
		rec, c := serveAdmin(fakeVerifier{token: token}, "abc")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", c.Get("userUID"))
		assert.Equal(t, "admin@example.com", c.Get("userEmail"))
	})
}

func TestErrorHandler(t *testing.T) {
	handler := NewErrorHandler(quietLogger())

	tests := []struct {
		name     string
		path     string
		err      error
		code     int
		contains string
		jsonBody bool
	}{
		{"webhook json", "/webhook", echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Request Entity Too Large"), http.StatusRequestEntityTooLarge, `"error":"Request Entity Too Large"`, true},
		{"admin json suffix", "/admin/orders/1/payment.json", errors.New("boom"), http.StatusInternalServerError, `"error":"Something went wrong`, true},
		{"html page", "/checkout/order-received/1", echo.ErrNotFound, http.StatusNotFound, "Page Not Found", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler(tt.err, c)

			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
			if tt.jsonBody {
				assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
			} else {
				assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
			}
		})
	}
}

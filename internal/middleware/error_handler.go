package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"whop_checkout_echo/web/templates/pages"
)

// jsonPrefixes are routes whose callers expect JSON errors instead of HTML pages
var jsonPrefixes = []string{"/webhook", "/whop/", "/checkout/orders/", "/auth/", "/health"}

func wantsJSON(c echo.Context) bool {
	path := c.Request().URL.Path
	for _, p := range jsonPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	if strings.HasSuffix(path, ".json") {
		return true
	}
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

// NewErrorHandler returns the echo error handler. API routes get {"error": msg},
// everything else gets the HTML error page.
func NewErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		errorMessage := ""
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if msg, ok := he.Message.(string); ok && msg != "" {
				errorMessage = msg
			}
		}

		errorTitle := http.StatusText(code)
		switch code {
		case http.StatusNotFound:
			errorTitle = "Page Not Found"
			if errorMessage == "" {
				errorMessage = "The page you're looking for doesn't exist."
			}
		case http.StatusUnauthorized:
			if errorMessage == "" {
				errorMessage = "Please log in to continue."
			}
		case http.StatusTooManyRequests:
			if errorMessage == "" {
				errorMessage = "Too many requests. Please slow down."
			}
		default:
			if errorMessage == "" {
				errorMessage = "Something went wrong. Please try again later."
			}
		}

		entry := log.WithFields(logrus.Fields{
			"status": code,
			"method": c.Request().Method,
			"path":   c.Request().URL.Path,
		})
		if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
			entry = entry.WithField("request_id", rid)
		}
		if code >= http.StatusInternalServerError {
			entry.WithError(err).Error("Request failed")
		} else {
			entry.WithError(err).Debug("Request rejected")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}

		if wantsJSON(c) {
			_ = c.JSON(code, map[string]string{"error": errorMessage})
			return
		}

		c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
		c.Response().WriteHeader(code)
		props := pages.ErrorPageProps{
			Code:         code,
			ErrorTitle:   errorTitle,
			ErrorMessage: errorMessage,
			BackLink:     "/",
			BackText:     "Back to shop",
		}
		if renderErr := pages.ErrorPage(props).Render(c.Request().Context(), c.Response()); renderErr != nil {
			log.WithError(fmt.Errorf("failed to render error page: %w", renderErr)).Error("Error page render failed")
		}
	}
}

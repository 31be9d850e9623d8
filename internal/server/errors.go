package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rcliao/reddit-digest/internal/auth"
	"github.com/rcliao/reddit-digest/internal/digest"
	"github.com/rcliao/reddit-digest/internal/prompts"
	"github.com/rcliao/reddit-digest/internal/reddit"
)

const adminKey = "admin"

type errorBody struct {
	Detail string `json:"detail"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	var apiErr *reddit.APIError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, digest.ErrInvalidRequest),
		errors.Is(err, prompts.ErrEmpty),
		errors.Is(err, prompts.ErrNotAllowed):
		return http.StatusBadRequest
	case errors.Is(err, prompts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, digest.ErrNoProvider):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("http internal error", "path", c.Path(), "err", err)
	}
	if err := c.JSON(code, errorBody{Detail: msg}); err != nil {
		srv.logger.Error("write error response", "err", err)
	}
}

// requireAdmin rejects requests without a valid admin bearer token.
func (srv *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if srv.auth == nil {
			return auth.ErrNotConfigured
		}
		email, err := srv.auth.Admin(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return err
		}
		c.Set(adminKey, email)
		return next(c)
	}
}

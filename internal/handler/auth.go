package handler

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/bookstack/library-service/internal/errs"
	"github.com/bookstack/library-service/internal/model"
	"github.com/bookstack/library-service/pkg/auth"
)

const tokenTTL = 24 * time.Hour

func (h *Handler) Register(c echo.Context) error {
	var req model.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user, err := h.librarySvc.RegisterUser(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, errs.ErrUserExists) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	token, expiresAt, err := signToken(user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, model.AuthResponse{
		AccessToken: token,
		ExpiresIn:   int(expiresAt.Unix()),
		User:        user,
	})
}

func (h *Handler) Login(c echo.Context) error {
	var credentials model.AuthRequest
	if err := c.Bind(&credentials); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&credentials); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user, err := h.librarySvc.GetUser(c.Request().Context(), credentials.Username)
	if err != nil {
		// same answer for unknown user and bad password
		if errors.Is(err, errs.ErrNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, errs.ErrInvalidCredentials.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(credentials.Password)); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, errs.ErrInvalidCredentials.Error())
	}

	token, expiresAt, err := signToken(user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, model.AuthResponse{
		AccessToken: token,
		ExpiresIn:   int(expiresAt.Unix()),
		User:        user,
	})
}

func signToken(user model.User) (string, time.Time, error) {
	expiresAt := time.Now().Add(tokenTTL)
	claims := &auth.Claims{
		Profile: struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		}{
			Username: user.Username,
			Role:     string(user.Role),
		},
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(auth.JWTKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

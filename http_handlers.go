package main

// this file contains implementation of HTTP handlers - REST API

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/sirupsen/logrus"
)

const (
	sessionCookieName = "session"
	sessionTokenTTL   = 24 * time.Hour
	sessionCookieTTL  = 7 * 24 * time.Hour
	reviewTokenTTL    = 7 * 24 * time.Hour
)

var (
	jwtSecret []byte
	service   Service
	mailer    Mailer
	notifier  *ReviewNotifier
	baseURL   string
	httpLog   logrus.FieldLogger
)

func NewHTTPRouter(cfg Config, _service Service, _mailer Mailer, _notifier *ReviewNotifier,
	logger logrus.FieldLogger) *echo.Echo {
	jwtSecret = []byte(cfg.JWTSecret)
	service = _service
	mailer = _mailer
	notifier = _notifier
	baseURL = strings.TrimRight(cfg.BaseURL, "/")
	httpLog = logger.WithField("component", "http")

	r := echo.New()
	r.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}\n",
	}))

	sessionAuth := middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:  jwtSecret,
		TokenLookup: "cookie:" + sessionCookieName,
		ErrorHandler: func(error) error {
			// missing and malformed cookies alike read as unauthenticated
			return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required.")
		},
	})

	router := r.Group("/api")
	router.GET("/health", healthCheckHandler)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/join", joinHandler)
		authGroup.GET("/callback", authCallbackHandler)
		authGroup.POST("/logout", logoutHandler)
		authGroup.GET("/me", meHandler, sessionAuth)
	}

	// public reads
	router.GET("/resources", feedHandler)
	router.GET("/resources/:id", resourceByIDHandler)

	resourceGroup := router.Group("/resources")
	resourceGroup.Use(sessionAuth)
	{
		resourceGroup.GET("/mine", myResourcesHandler)
		resourceGroup.POST("", newResourceHandler)
		resourceGroup.PUT("/:id", updateResourceHandler)
		resourceGroup.DELETE("/:id", deleteResourceHandler)
		resourceGroup.POST("/:id/star", starResourceHandler)
	}

	router.GET("/review/accept", reviewAcceptHandler)

	return r
}

func healthCheckHandler(c echo.Context) error {
	return c.String(http.StatusOK, "I am up and running!")
}

// joinHandler starts the magic-link sign-in: it emails a tokenized callback
// link to the given address. It never reveals whether the address is known.
func joinHandler(c echo.Context) error {
	form := struct {
		Email string `json:"email" form:"email"`
	}{}
	if err := c.Bind(&form); err != nil || !validEmail(form.Email) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "A valid email is required.",
		})
	}

	if err := service.EnsureUser(form.Email); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to sign in.",
		})
	}

	token, err := signSessionToken(jwtSecret, form.Email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to sign in.",
		})
	}

	link := baseURL + "/api/auth/callback?token=" + token
	if err := mailer.SendSigninLink(form.Email, link); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to send email.",
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func authCallbackHandler(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return c.Redirect(http.StatusTemporaryRedirect, baseURL+"/join?error=missing-session-token")
	}
	if _, err := parseEmailToken(jwtSecret, token); err != nil {
		return c.Redirect(http.StatusTemporaryRedirect, baseURL+"/join?error=invalid-session")
	}

	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		MaxAge:   int(sessionCookieTTL.Seconds()),
	})
	return c.Redirect(http.StatusTemporaryRedirect, baseURL+"/")
}

func logoutHandler(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		MaxAge:   -1,
	})
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func meHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"email": getEmailFromContext(c)})
}

func feedHandler(c echo.Context) error {
	page, err := service.Feed(c.QueryParam("q"), c.QueryParam("cursor"))
	if err != nil {
		return serviceErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func resourceByIDHandler(c echo.Context) error {
	view, err := service.GetResource(c.Param("id"), optionalViewer(c))
	if err != nil {
		return serviceErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"resource": view})
}

func myResourcesHandler(c echo.Context) error {
	page, err := service.FeedByAuthor(getEmailFromContext(c), c.QueryParam("cursor"))
	if err != nil {
		return serviceErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func newResourceHandler(c echo.Context) error {
	form := ResourceInput{}
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Malformed request body.",
		})
	}
	if verr := ValidateInput(form); verr != nil {
		return c.JSON(http.StatusBadRequest, verr)
	}

	res, err := service.SubmitResource(form, getEmailFromContext(c))
	if err != nil {
		return serviceErrorResponse(c, err)
	}

	notifier.Notify(*res)
	return c.JSON(http.StatusOK, res)
}

func updateResourceHandler(c echo.Context) error {
	form := ResourceUpdateInput{}
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Malformed request body.",
		})
	}
	if verr := ValidateInput(form); verr != nil {
		return c.JSON(http.StatusBadRequest, verr)
	}

	if err := service.UpdateResource(c.Param("id"), form, getEmailFromContext(c)); err != nil {
		return serviceErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func deleteResourceHandler(c echo.Context) error {
	if err := service.DeleteResource(c.Param("id"), getEmailFromContext(c)); err != nil {
		return serviceErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func starResourceHandler(c echo.Context) error {
	stars, voted, err := service.ToggleStar(c.Param("id"), getEmailFromContext(c))
	if err != nil {
		return serviceErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"stars": stars,
		"voted": voted,
	})
}

func reviewAcceptHandler(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Token is required"})
	}
	reviewer, resourceID, err := parseReviewToken(jwtSecret, token)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid or expired token."})
	}

	if err := service.AcceptReview(resourceID); err != nil {
		if errors.Is(err, ErrAlreadyReviewed) {
			return c.JSON(http.StatusOK, echo.Map{
				"success": false,
				"message": "Review failed. Maybe it's already reviewed?",
			})
		}
		return serviceErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Resource reviewed successfully! Thank you for your feedback, " +
			strings.SplitN(reviewer, "@", 2)[0],
	})
}

// serviceErrorResponse maps the error taxonomy onto status codes. Anything
// outside the taxonomy is logged and surfaced as a generic failure.
func serviceErrorResponse(c echo.Context, err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, verr)
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Resource not found"})
	case errors.Is(err, ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "You do not own this resource."})
	case errors.Is(err, ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required."})
	case errors.Is(err, ErrContention):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "Too many concurrent updates, please retry.",
			"retryable": true,
		})
	default:
		httpLog.WithError(err).Error("request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Something went wrong."})
	}
}

func getEmailFromContext(c echo.Context) string {
	return c.Get("user").(*jwt.Token).Claims.(jwt.MapClaims)["email"].(string)
}

// optionalViewer extracts the identity from the session cookie when present.
// Anonymous and invalid sessions read as an empty viewer; the resource is
// still served, just with is_starred false.
func optionalViewer(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	email, err := parseEmailToken(jwtSecret, cookie.Value)
	if err != nil {
		return ""
	}
	return email
}

func signSessionToken(secret []byte, email string) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)
	claims["email"] = email
	claims["exp"] = time.Now().Add(sessionTokenTTL).Unix()
	return token.SignedString(secret)
}

func signReviewToken(secret []byte, email, resourceID string) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)
	claims["email"] = email
	claims["resource_id"] = resourceID
	claims["exp"] = time.Now().Add(reviewTokenTTL).Unix()
	return token.SignedString(secret)
}

func parseEmailToken(secret []byte, tokenStr string) (string, error) {
	claims, err := parseClaims(secret, tokenStr)
	if err != nil {
		return "", err
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return "", ErrUnauthenticated
	}
	return email, nil
}

func parseReviewToken(secret []byte, tokenStr string) (string, string, error) {
	claims, err := parseClaims(secret, tokenStr)
	if err != nil {
		return "", "", err
	}
	email, ok1 := claims["email"].(string)
	resourceID, ok2 := claims["resource_id"].(string)
	if !ok1 || !ok2 || email == "" || resourceID == "" {
		return "", "", ErrUnauthenticated
	}
	return email, resourceID, nil
}

func parseClaims(secret []byte, tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthenticated
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthenticated
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

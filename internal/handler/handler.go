package handler

import (
	"net/http"

	"github.com/IBM/sarama"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	"github.com/bookstack/library-service/internal/model"
	md "github.com/bookstack/library-service/pkg/middleware"
	"github.com/bookstack/library-service/pkg/validate"
	_ "github.com/bookstack/library-service/swagger"
)

type Handler struct {
	librarySvc LibraryService
	enqueuer   Enqueuer
	log        *zap.Logger
}

func New(librarySvc LibraryService, producer sarama.SyncProducer, log *zap.Logger) *Handler {
	h := &Handler{
		librarySvc: librarySvc,
		log:        log,
	}
	if producer != nil {
		h.enqueuer = NewEnqueuer(producer)
	}
	return h
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig()),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	api.GET("/books", h.GetBooks)
	api.GET("/books/:bookUid", h.GetBook)

	authed := api.Group("", md.JwtAuthentication)
	authed.POST("/borrow", h.BorrowBook)
	authed.POST("/borrow/return", h.ReturnBook)
	authed.GET("/borrow/my-books", h.MyBooks)

	librarian := authed.Group("", md.RequireRole(string(model.RoleLibrarian)))
	librarian.POST("/books", h.CreateBook)
	librarian.PATCH("/books/:bookUid", h.UpdateBook)
	librarian.DELETE("/books/:bookUid", h.DeleteBook)
	librarian.GET("/borrow/all", h.AllLoans)
	librarian.GET("/borrow/stats", h.Stats)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

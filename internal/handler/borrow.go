package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bookstack/library-service/internal/errs"
	"github.com/bookstack/library-service/internal/model"
	"github.com/bookstack/library-service/pkg/auth"
	"github.com/bookstack/library-service/pkg/kafka"
)

func (h *Handler) BorrowBook(c echo.Context) error {
	var req model.BorrowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	username := auth.UserName(ctx)

	loan, book, err := h.librarySvc.BorrowBook(ctx, username, req.BookUid)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrBookNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, errs.ErrDuplicateBorrow),
			errors.Is(err, errs.ErrBorrowLimitExceeded),
			errors.Is(err, errs.ErrBookUnavailable):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, errs.ErrTxConflict):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.enqueueLoanEvent(kafka.EventBorrowed, loan, book, username)

	return c.JSON(http.StatusCreated, model.BorrowResponse{
		Loan: loan.View(),
		Book: book,
	})
}

func (h *Handler) ReturnBook(c echo.Context) error {
	var req model.ReturnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	username := auth.UserName(ctx)
	role := model.Role(auth.UserRole(ctx))

	loan, book, err := h.librarySvc.ReturnBook(ctx, username, role, req.LoanUid)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrNoActiveLoan):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, errs.ErrAlreadyReturned):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, errs.ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		case errors.Is(err, errs.ErrTxConflict):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.enqueueLoanEvent(kafka.EventReturned, loan, book, username)

	return c.JSON(http.StatusOK, model.BorrowResponse{
		Loan: loan.View(),
		Book: book,
	})
}

func (h *Handler) MyBooks(c echo.Context) error {
	ctx := c.Request().Context()
	username := auth.UserName(ctx)

	status := c.QueryParam("status")
	switch status {
	case "", "all", string(model.StatusBorrowed), string(model.StatusReturned), string(model.StatusOverdue):
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status is invalid")
	}

	loans, err := h.librarySvc.UserLoans(ctx, username, status)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, loans)
}

func (h *Handler) AllLoans(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		err        error
		page, size int
	)
	if pageParam := c.QueryParam("page"); pageParam != "" {
		if page, err = strconv.Atoi(pageParam); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.New("page is invalid"))
		}
	}
	if sizeParam := c.QueryParam("size"); sizeParam != "" {
		if size, err = strconv.Atoi(sizeParam); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.New("size is invalid"))
		}
	}

	loans, err := h.librarySvc.AllLoans(ctx, model.LoanFilter{
		Status: c.QueryParam("status"),
		Page:   page,
		Size:   size,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, loans)
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.librarySvc.GetStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

// enqueueLoanEvent publishes the audit event after the transaction committed;
// a broker failure is logged, never surfaced to the caller.
func (h *Handler) enqueueLoanEvent(eventType string, loan model.Loan, book model.Book, username string) {
	if h.enqueuer == nil {
		return
	}
	if err := h.enqueuer.Enqueue(kafka.LoansTopic, kafka.LoanEvent{
		EventType: eventType,
		LoanUid:   loan.LoanUid,
		Username:  username,
		BookUid:   book.BookUid,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		h.log.Warn("enqueue loan event", zap.String("loanUid", loan.LoanUid), zap.Error(err))
	}
}

package handler_test

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/bookstack/library-service/internal/errs"
	"github.com/bookstack/library-service/internal/handler"
	"github.com/bookstack/library-service/internal/model"
	"github.com/bookstack/library-service/pkg/auth"
	"github.com/bookstack/library-service/pkg/validate"

	service_mocks "github.com/bookstack/library-service/internal/handler/mocks"
)

const (
	testBookUid = "f7cdc58f-2caf-4b15-9727-f89dcc629b27"
	testLoanUid = "6f2d8f8e-0a4e-45c5-bd32-bd331bd05a6b"
	testUser    = "gopher"
)

func withAuth(username, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.SetAuthContext(c.Request().Context(), username, role)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func testLoan() model.Loan {
	borrowedAt := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.Loan{
		LoanUid:    testLoanUid,
		BorrowDate: borrowedAt,
		DueDate:    borrowedAt.Add(model.LoanTerm),
	}
}

func testBook(available int) model.Book {
	return model.Book{
		BookUid:   testBookUid,
		Title:     "The Go Programming Language",
		Author:    "Alan Donovan",
		Isbn:      "978-0134190440",
		Quantity:  3,
		Available: available,
	}
}

func TestHandler_BorrowBook(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLibraryService)

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"bookUid":"` + testBookUid + `"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), testUser, testBookUid).
					Return(testLoan(), testBook(2), nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"loan":{"loanUid":"` + testLoanUid + `","borrowDate":"2100-01-01T00:00:00Z","dueDate":"2100-01-15T00:00:00Z","returnDate":null,"status":"borrowed"},"book":{"bookUid":"` + testBookUid + `","title":"The Go Programming Language","author":"Alan Donovan","isbn":"978-0134190440","quantity":3,"available":2}}`,
			},
		},
		{
			name: "err. duplicate borrow",
			body: `{"bookUid":"` + testBookUid + `"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), testUser, testBookUid).
					Return(model.Loan{}, model.Book{}, errs.ErrDuplicateBorrow)
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"book already borrowed by this user"}`,
			},
		},
		{
			name: "err. borrow limit",
			body: `{"bookUid":"` + testBookUid + `"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), testUser, testBookUid).
					Return(model.Loan{}, model.Book{}, errs.ErrBorrowLimitExceeded)
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"active loan limit exceeded"}`,
			},
		},
		{
			name: "err. no copies available",
			body: `{"bookUid":"` + testBookUid + `"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), testUser, testBookUid).
					Return(model.Loan{}, model.Book{}, errs.ErrBookUnavailable)
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"no copies available"}`,
			},
		},
		{
			name: "err. book not found",
			body: `{"bookUid":"` + testBookUid + `"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), testUser, testBookUid).
					Return(model.Loan{}, model.Book{}, errs.ErrBookNotFound)
			},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"message":"book not found"}`,
			},
		},
		{
			name: "err. tx conflict",
			body: `{"bookUid":"` + testBookUid + `"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), testUser, testBookUid).
					Return(model.Loan{}, model.Book{}, errs.ErrTxConflict)
			},
			response: response{
				expectedCode: http.StatusServiceUnavailable,
				expectedBody: `{"message":"storage conflict, retry later"}`,
			},
		},
		{
			name:         "err. bookUid is not uuid",
			body:         `{"bookUid":"not-a-uuid"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
			},
		},
		{
			name: "err. internal",
			body: `{"bookUid":"` + testBookUid + `"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					BorrowBook(gomock.Any(), testUser, testBookUid).
					Return(model.Loan{}, model.Book{}, errors.New("db internal"))
			},
			response: response{
				expectedCode: http.StatusInternalServerError,
				expectedBody: `{"message":"db internal"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLibraryService(c)
			log := zap.NewExample().Named("test")
			h := handler.New(svc, nil, log)

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/api/v1/borrow", h.BorrowBook, withAuth(testUser, string(model.RoleBorrower)))

			r := httptest.NewRequest(http.MethodPost, "/api/v1/borrow", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_ReturnBook(t *testing.T) {
	t.Parallel()
	returnedLoan := testLoan()
	returnedLoan.ReturnDate = sql.NullTime{
		Time:  time.Date(2100, 1, 5, 0, 0, 0, 0, time.UTC),
		Valid: true,
	}

	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLibraryService)

	var tests = []struct {
		name         string
		role         model.Role
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			role: model.RoleBorrower,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					ReturnBook(gomock.Any(), testUser, model.RoleBorrower, testLoanUid).
					Return(returnedLoan, testBook(3), nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"loan":{"loanUid":"` + testLoanUid + `","borrowDate":"2100-01-01T00:00:00Z","dueDate":"2100-01-15T00:00:00Z","returnDate":"2100-01-05T00:00:00Z","status":"returned"},"book":{"bookUid":"` + testBookUid + `","title":"The Go Programming Language","author":"Alan Donovan","isbn":"978-0134190440","quantity":3,"available":3}}`,
			},
		},
		{
			name: "err. no active loan",
			role: model.RoleBorrower,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					ReturnBook(gomock.Any(), testUser, model.RoleBorrower, testLoanUid).
					Return(model.Loan{}, model.Book{}, errs.ErrNoActiveLoan)
			},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"message":"active loan not found"}`,
			},
		},
		{
			name: "err. already returned",
			role: model.RoleBorrower,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					ReturnBook(gomock.Any(), testUser, model.RoleBorrower, testLoanUid).
					Return(model.Loan{}, model.Book{}, errs.ErrAlreadyReturned)
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"loan already returned"}`,
			},
		},
		{
			name: "err. not the owner",
			role: model.RoleBorrower,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					ReturnBook(gomock.Any(), testUser, model.RoleBorrower, testLoanUid).
					Return(model.Loan{}, model.Book{}, errs.ErrForbidden)
			},
			response: response{
				expectedCode: http.StatusForbidden,
				expectedBody: `{"message":"not the loan owner"}`,
			},
		},
		{
			name: "ok. librarian returns for another user",
			role: model.RoleLibrarian,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					ReturnBook(gomock.Any(), testUser, model.RoleLibrarian, testLoanUid).
					Return(returnedLoan, testBook(3), nil)
			},
			response: response{
				expectedCode: http.StatusOK,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLibraryService(c)
			log := zap.NewExample().Named("test")
			h := handler.New(svc, nil, log)

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/api/v1/borrow/return", h.ReturnBook, withAuth(testUser, string(tt.role)))

			r := httptest.NewRequest(http.MethodPost, "/api/v1/borrow/return",
				strings.NewReader(`{"loanUid":"`+testLoanUid+`"}`))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_MyBooks(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLibraryService)

	record := model.LoanRecord{
		Loan:    testLoan(),
		Status:  model.StatusBorrowed,
		BookUid: testBookUid,
		Title:   "The Go Programming Language",
		Author:  "Alan Donovan",
		Isbn:    "978-0134190440",
	}

	var tests = []struct {
		name         string
		status       string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name:   "ok",
			status: "borrowed",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					UserLoans(gomock.Any(), testUser, "borrowed").
					Return([]model.LoanRecord{record}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `[{"loanUid":"` + testLoanUid + `","borrowDate":"2100-01-01T00:00:00Z","dueDate":"2100-01-15T00:00:00Z","status":"borrowed","returnDate":null,"bookUid":"` + testBookUid + `","title":"The Go Programming Language","author":"Alan Donovan","isbn":"978-0134190440"}]`,
			},
		},
		{
			name:   "ok. no filter",
			status: "",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					UserLoans(gomock.Any(), testUser, "").
					Return([]model.LoanRecord{}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `[]`,
			},
		},
		{
			name:         "err. unknown status",
			status:       "lost",
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"status is invalid"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLibraryService(c)
			log := zap.NewExample().Named("test")
			h := handler.New(svc, nil, log)

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.GET("/api/v1/borrow/my-books", h.MyBooks, withAuth(testUser, string(model.RoleBorrower)))

			r := httptest.NewRequest(http.MethodGet, "/api/v1/borrow/my-books?status="+tt.status, http.NoBody)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_Login(t *testing.T) {
	t.Parallel()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)

	user := model.User{
		Name:     "Gopher",
		Username: testUser,
		Email:    "gopher@example.com",
		Password: string(hash),
		Role:     model.RoleBorrower,
	}

	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLibraryService)

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"username":"` + testUser + `","password":"secret123"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					GetUser(context.Background(), testUser).
					Return(user, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
			},
		},
		{
			name: "err. unknown user",
			body: `{"username":"nobody","password":"secret123"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					GetUser(context.Background(), "nobody").
					Return(model.User{}, errs.ErrNotFound)
			},
			response: response{
				expectedCode: http.StatusUnauthorized,
				expectedBody: `{"message":"invalid credentials"}`,
			},
		},
		{
			name: "err. wrong password",
			body: `{"username":"` + testUser + `","password":"wrong-pass"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					GetUser(context.Background(), testUser).
					Return(user, nil)
			},
			response: response{
				expectedCode: http.StatusUnauthorized,
				expectedBody: `{"message":"invalid credentials"}`,
			},
		},
		{
			name:         "err. password required",
			body:         `{"username":"` + testUser + `"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLibraryService(c)
			log := zap.NewExample().Named("test")
			h := handler.New(svc, nil, log)

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/api/v1/auth/login", h.Login)

			r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			} else if w.Code == http.StatusOK {
				require.Contains(t, w.Body.String(), `"accessToken":`)
				require.Contains(t, w.Body.String(), `"username":"`+testUser+`"`)
			}
		})
	}
}

func TestHandler_CreateBook(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLibraryService)

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"title":"The Go Programming Language","author":"Alan Donovan","isbn":"978-0134190440","quantity":3}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					CreateBook(context.Background(), model.CreateBookRequest{
						Title:    "The Go Programming Language",
						Author:   "Alan Donovan",
						Isbn:     "978-0134190440",
						Quantity: 3,
					}).
					Return(testBook(3), nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"bookUid":"` + testBookUid + `","title":"The Go Programming Language","author":"Alan Donovan","isbn":"978-0134190440","quantity":3,"available":3}`,
			},
		},
		{
			name: "err. isbn exists",
			body: `{"title":"The Go Programming Language","author":"Alan Donovan","isbn":"978-0134190440","quantity":3}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					CreateBook(context.Background(), gomock.Any()).
					Return(model.Book{}, errs.ErrIsbnExists)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"isbn already exists"}`,
			},
		},
		{
			name:         "err. quantity required",
			body:         `{"title":"No Copies","author":"Nobody","isbn":"978-1"}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLibraryService(c)
			log := zap.NewExample().Named("test")
			h := handler.New(svc, nil, log)

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/api/v1/books", h.CreateBook)

			r := httptest.NewRequest(http.MethodPost, "/api/v1/books", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

package model

import (
	"database/sql"
	"time"
)

type Role string

const (
	RoleLibrarian Role = "librarian"
	RoleBorrower  Role = "borrower"
)

func (r Role) Valid() bool {
	switch r {
	case RoleLibrarian, RoleBorrower:
		return true
	}
	return false
}

type User struct {
	ID       int       `json:"-" db:"id"`
	Name     string    `json:"name" db:"name"`
	Username string    `json:"username" db:"username"`
	Email    string    `json:"email" db:"email"`
	Password string    `json:"-" db:"password"`
	Role     Role      `json:"role" db:"role"`
	Created  time.Time `json:"-" db:"created_at"`
}

type Book struct {
	ID          int       `json:"-" db:"id"`
	BookUid     string    `json:"bookUid" db:"book_uid"`
	Title       string    `json:"title" db:"title"`
	Author      string    `json:"author" db:"author"`
	Isbn        string    `json:"isbn" db:"isbn"`
	Quantity    int       `json:"quantity" db:"quantity"`
	Available   int       `json:"available" db:"available"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"-" db:"created_at"`
	UpdatedAt   time.Time `json:"-" db:"updated_at"`
}

// LoanTerm is the fixed loan period: dueDate = borrowDate + LoanTerm.
const LoanTerm = 14 * 24 * time.Hour

type LoanStatus string

const (
	StatusBorrowed LoanStatus = "borrowed"
	StatusReturned LoanStatus = "returned"
	StatusOverdue  LoanStatus = "overdue"
)

type Loan struct {
	ID         int          `json:"-" db:"id"`
	LoanUid    string       `json:"loanUid" db:"loan_uid"`
	UserID     int          `json:"-" db:"user_id"`
	BookID     int          `json:"-" db:"book_id"`
	BorrowDate time.Time    `json:"borrowDate" db:"borrow_date"`
	DueDate    time.Time    `json:"dueDate" db:"due_date"`
	ReturnDate sql.NullTime `json:"-" db:"return_date"`
}

func (l Loan) Active() bool {
	return !l.ReturnDate.Valid
}

// Status derives the loan state: overdue is computed, never stored.
func (l Loan) Status() LoanStatus {
	return l.StatusAt(time.Now())
}

func (l Loan) StatusAt(now time.Time) LoanStatus {
	if l.ReturnDate.Valid {
		return StatusReturned
	}
	if l.DueDate.Before(now) {
		return StatusOverdue
	}
	return StatusBorrowed
}

// CanBorrow is the eligibility policy: a non-positive max disables the limit.
func CanBorrow(activeLoanCount, maxLoans int) bool {
	if maxLoans <= 0 {
		return true
	}
	return activeLoanCount < maxLoans
}

// LoanView is the json shape of a loan with its derived status.
type LoanView struct {
	LoanUid    string     `json:"loanUid"`
	BorrowDate time.Time  `json:"borrowDate"`
	DueDate    time.Time  `json:"dueDate"`
	ReturnDate *time.Time `json:"returnDate"`
	Status     LoanStatus `json:"status"`
}

func (l Loan) View() LoanView {
	v := LoanView{
		LoanUid:    l.LoanUid,
		BorrowDate: l.BorrowDate,
		DueDate:    l.DueDate,
		Status:     l.Status(),
	}
	if l.ReturnDate.Valid {
		t := l.ReturnDate.Time
		v.ReturnDate = &t
	}
	return v
}

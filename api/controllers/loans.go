package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Lavavarshney/Library-Management-System/api/responses"
	"github.com/Lavavarshney/Library-Management-System/api/validators"
	"github.com/Lavavarshney/Library-Management-System/internal/loans"
	pkgerrors "github.com/Lavavarshney/Library-Management-System/pkg/errors"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
)

type issueLoanRequest struct {
	PatronID string     `json:"patron_id" validate:"required,max=64"`
	ItemID   string     `json:"item_id" validate:"required,max=64"`
	IssuedAt *time.Time `json:"issued_at,omitempty"`
	DueAt    *time.Time `json:"due_at,omitempty"`
}

type returnLoanRequest struct {
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

// IssueLoan lends an item to a patron.
func IssueLoan(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body issueLoanRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Issue(r.Context(), loans.IssueInput{
			PatronID: validators.SanitizeString(body.PatronID, 64),
			ItemID:   validators.SanitizeString(body.ItemID, 64),
			IssuedAt: derefTime(body.IssuedAt),
			DueAt:    derefTime(body.DueAt),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// ReturnLoan closes an open loan; an empty body returns it now.
func ReturnLoan(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body returnLoanRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Return(r.Context(), chi.URLParam(r, "loanId"), derefTime(body.ReturnedAt))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func GetLoan(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Get(r.Context(), chi.URLParam(r, "loanId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ListLoans returns every loan, or only open ones with ?status=open.
func ListLoans(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			views []loans.LoanView
			err   error
		)
		switch status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))); status {
		case "":
			views, err = svc.List(r.Context())
		case loans.StatusOpen:
			views, err = svc.ListOpenLoans(r.Context())
		default:
			err = pkgerrors.New(pkgerrors.CodeValidation, "unsupported status filter").
				WithDetails(map[string]any{"status": status})
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": views})
	}
}

// ListOverdueLoans reports open loans past due at ?as_of (default now).
func ListOverdueLoans(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asOf, err := validators.ParseQueryTime(r, "as_of")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		overdue, err := svc.ListOverdue(r.Context(), asOf)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": overdue})
	}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

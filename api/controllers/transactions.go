package controllers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/rrsoftech/agencypay-backend/api/responses"
	"github.com/rrsoftech/agencypay-backend/api/validators"
	"github.com/rrsoftech/agencypay-backend/internal/reconcile"
	"github.com/rrsoftech/agencypay-backend/internal/transactions"
	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
	"github.com/rrsoftech/agencypay-backend/pkg/pagination"
)

const proofFormMemoryLimit = 12 << 20 // bytes held in memory before spilling to disk

func TransactionsList(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requesterID, role, err := requester(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := transactions.ListTransactionsInput{
			RequesterID:   requesterID,
			RequesterRole: role,
			Page: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("order_id")); raw != "" {
			orderID, err := parseUUIDField(raw, "order_id")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.OrderID = &orderID
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseTransactionStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction status"))
				return
			}
			input.Status = &status
		}

		list, next, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, listEnvelope{Items: list, NextCursor: encodeNextCursor(next)})
	}
}

func TransactionDetail(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requesterID, role, err := requester(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transactionID, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transaction, err := svc.Get(r.Context(), transactions.GetTransactionInput{
			RequesterID:   requesterID,
			RequesterRole: role,
			TransactionID: transactionID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, transaction)
	}
}

// TransactionSubmitProof accepts a multipart form with an optional
// reference_number field and an optional screenshot image; at least one of
// the two must be present.
func TransactionSubmitProof(svc reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requesterID, role, err := requester(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transactionID, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := r.ParseMultipartForm(proofFormMemoryLimit); err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "expected multipart form data"))
			return
		}

		input := reconcile.SubmitProofInput{
			RequesterID:   requesterID,
			RequesterRole: role,
			TransactionID: transactionID,
		}

		if ref := strings.TrimSpace(r.FormValue("reference_number")); ref != "" {
			input.ReferenceNumber = &ref
		}

		if file, _, err := r.FormFile("screenshot"); err == nil {
			defer file.Close()
			content, err := io.ReadAll(file)
			if err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeValidation, err, "reading screenshot upload"))
				return
			}
			input.Screenshot = content
		} else if err != http.ErrMissingFile {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "reading screenshot upload"))
			return
		}

		transaction, err := svc.SubmitProof(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, transaction)
	}
}

func TransactionApprove(svc reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return reviewTransaction(svc.Approve, logg)
}

func TransactionReject(svc reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return reviewTransaction(svc.Reject, logg)
}

func reviewTransaction(
	review func(ctx context.Context, input reconcile.ReviewInput) (*models.Transaction, error),
	logg *logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, role, err := requester(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transactionID, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transaction, err := review(r.Context(), reconcile.ReviewInput{
			RequesterRole: role,
			TransactionID: transactionID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, transaction)
	}
}

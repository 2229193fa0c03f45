package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/rrsoftech/agencypay-backend/api/responses"
	"github.com/rrsoftech/agencypay-backend/api/validators"
	"github.com/rrsoftech/agencypay-backend/internal/milestones"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

type createMilestoneRequest struct {
	OrderID     string  `json:"order_id" validate:"required"`
	Title       string  `json:"title" validate:"required,min=1"`
	Description *string `json:"description,omitempty"`
	Amount      string  `json:"amount" validate:"required"`
	DueDate     *string `json:"due_date,omitempty"`
}

func parseDueDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	due, err := time.Parse(time.RFC3339, strings.TrimSpace(*raw))
	if err != nil {
		due, err = time.Parse("2006-01-02", strings.TrimSpace(*raw))
	}
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "due_date must be an RFC 3339 timestamp or YYYY-MM-DD date")
	}
	return &due, nil
}

func MilestoneCreate(svc milestones.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, role, err := requester(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createMilestoneRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseUUIDField(payload.OrderID, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(payload.Amount))
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "amount must be a decimal number"))
			return
		}

		dueDate, err := parseDueDate(payload.DueDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		milestone, err := svc.Create(r.Context(), milestones.CreateMilestoneInput{
			RequesterRole: role,
			OrderID:       orderID,
			Title:         strings.TrimSpace(payload.Title),
			Description:   payload.Description,
			Amount:        amount,
			DueDate:       dueDate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, milestone)
	}
}

// MilestonesList returns an order's milestones; the order id comes from the
// order_id query parameter.
func MilestonesList(svc milestones.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requesterID, role, err := requester(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseUUIDField(r.URL.Query().Get("order_id"), "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByOrder(r.Context(), milestones.ListMilestonesInput{
			RequesterID:   requesterID,
			RequesterRole: role,
			OrderID:       orderID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

type updateMilestoneRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1"`
	Description *string `json:"description,omitempty"`
	Amount      *string `json:"amount,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	Status      *string `json:"status,omitempty"`
}

func MilestoneUpdate(svc milestones.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, role, err := requester(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		milestoneID, err := validators.ParseUUIDParam(r, "milestoneId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateMilestoneRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := milestones.UpdateMilestoneInput{
			RequesterRole: role,
			MilestoneID:   milestoneID,
			Title:         payload.Title,
			Description:   payload.Description,
		}

		if amount, err := parseOptionalDecimal(payload.Amount, "amount"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		} else {
			input.Amount = amount
		}

		if due, err := parseDueDate(payload.DueDate); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		} else {
			input.DueDate = due
		}

		if payload.Status != nil {
			status, err := enums.ParseMilestoneStatus(strings.TrimSpace(*payload.Status))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid milestone status"))
				return
			}
			input.Status = &status
		}

		milestone, err := svc.Update(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, milestone)
	}
}

type initiatePaymentRequest struct {
	ProviderCode string  `json:"provider_code" validate:"required"`
	CustomAmount *string `json:"custom_amount,omitempty"`
}

// MilestoneInitiatePayment starts a payment against a milestone and returns
// the instructions the payer needs to complete it.
func MilestoneInitiatePayment(svc milestones.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requesterID, role, err := requester(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		milestoneID, err := validators.ParseUUIDParam(r, "milestoneId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		instructions, err := svc.InitiatePayment(r.Context(), milestones.InitiatePaymentInput{
			RequesterID:   requesterID,
			RequesterRole: role,
			MilestoneID:   milestoneID,
			ProviderCode:  strings.TrimSpace(payload.ProviderCode),
			CustomAmount:  payload.CustomAmount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, instructions)
	}
}

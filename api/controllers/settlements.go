package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dukalink-backend/api/responses"
	"github.com/angelmondragon/dukalink-backend/api/validators"
	"github.com/angelmondragon/dukalink-backend/internal/settlements"
	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/pagination"
)

// SettlementLister lists a vendor's settlements.
type SettlementLister interface {
	ListForVendor(ctx context.Context, params settlements.ListParams) (*settlements.ListResult, error)
}

// SettlementTransitioner moves a settlement through the payout lifecycle.
type SettlementTransitioner interface {
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, transactionID string) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// SettlementService backs the vendor and admin settlement routes.
type SettlementService interface {
	SettlementLister
	SettlementTransitioner
}

type settlementStatusRequest struct {
	Status        enums.SettlementStatus `json:"status" validate:"required,oneof=processing completed failed"`
	TransactionID string                 `json:"transaction_id" validate:"max=64"`
}

type settlementStatusResponse struct {
	ID     uuid.UUID              `json:"id"`
	Status enums.SettlementStatus `json:"status"`
}

type settlementPage struct {
	Items  []settlementResponse `json:"items"`
	Cursor string               `json:"cursor"`
}

type settlementResponse struct {
	ID               uuid.UUID              `json:"id"`
	OrderID          uuid.UUID              `json:"order_id"`
	VendorID         uuid.UUID              `json:"vendor_id"`
	Amount           decimal.Decimal        `json:"amount"`
	CommissionAmount decimal.Decimal        `json:"commission_amount"`
	NetAmount        decimal.Decimal        `json:"net_amount"`
	Status           enums.SettlementStatus `json:"status"`
	MpesaReceipt     *string                `json:"mpesa_receipt,omitempty"`
	TransactionID    *string                `json:"transaction_id,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

// VendorSettlements pages through what the platform owes the caller's
// businesses, optionally filtered by ?status=.
func VendorSettlements(svc SettlementLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		userID, err := userFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		raw, err := validators.QueryOneOf(r, "status",
			string(enums.SettlementStatusPending),
			string(enums.SettlementStatusProcessing),
			string(enums.SettlementStatusCompleted),
			string(enums.SettlementStatusFailed),
		)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var status *enums.SettlementStatus
		if raw != "" {
			parsed := enums.SettlementStatus(raw)
			status = &parsed
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListForVendor(r.Context(), settlements.ListParams{
			UserID: userID,
			Status: status,
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, settlementPage{
			Items:  newSettlementResponses(page.Items),
			Cursor: page.Cursor,
		})
	}
}

func newSettlementResponses(rows []models.VendorSettlement) []settlementResponse {
	out := make([]settlementResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, settlementResponse{
			ID:               row.ID,
			OrderID:          row.OrderID,
			VendorID:         row.VendorID,
			Amount:           row.Amount,
			CommissionAmount: row.CommissionAmount,
			NetAmount:        row.NetAmount,
			Status:           row.Status,
			MpesaReceipt:     row.MpesaReceipt,
			TransactionID:    row.TransactionID,
			CompletedAt:      row.CompletedAt,
			CreatedAt:        row.CreatedAt,
		})
	}
	return out
}

// AdminSettlementStatus records the outcome of a payout made outside the
// platform: pending to processing, processing to completed, or either to failed.
func AdminSettlementStatus(svc SettlementTransitioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		id, err := validators.PathUUID(r, "settlementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req settlementStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithField(r.Context(), "settlement_id", id.String())
		switch req.Status {
		case enums.SettlementStatusProcessing:
			err = svc.MarkProcessing(ctx, id)
		case enums.SettlementStatusCompleted:
			err = svc.MarkCompleted(ctx, id, req.TransactionID)
		default:
			err = svc.MarkFailed(ctx, id)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logg.Info(logg.WithField(ctx, "status", string(req.Status)), "settlement status updated")
		responses.WriteSuccess(w, settlementStatusResponse{ID: id, Status: req.Status})
	}
}

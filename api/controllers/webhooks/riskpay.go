package webhooks

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rrsoftech/agencypay-backend/api/responses"
	"github.com/rrsoftech/agencypay-backend/internal/reconcile"
	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
)

type ipnPayload struct {
	IPNToken    string  `json:"ipn_token"`
	Status      string  `json:"status"`
	TxidOut     *string `json:"txid_out"`
	Coin        *string `json:"coin"`
	ValueInCoin *string `json:"value_coin"`
}

// RiskPayIPN handles gateway payment notifications. The gateway retries on
// non-2xx responses, so anything past the token lookup answers 200.
func RiskPayIPN(svc reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeIPN(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transaction, err := svc.HandleIPN(r.Context(), reconcile.IPNInput{
			IPNToken:    payload.IPNToken,
			Status:      payload.Status,
			TxidOut:     payload.TxidOut,
			Coin:        payload.Coin,
			ValueInCoin: payload.ValueInCoin,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{
			"transaction_id": transaction.ID.String(),
			"status":         string(transaction.Status),
		})
	}
}

func decodeIPN(r *http.Request) (ipnPayload, error) {
	var payload ipnPayload

	contentType := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.Contains(contentType, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return payload, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ipn body")
		}
		payload.IPNToken = strings.TrimSpace(payload.IPNToken)
		payload.Status = strings.TrimSpace(payload.Status)
		return payload, nil
	}

	// The gateway posts form-encoded notifications; ParseForm also folds in
	// the query string for GET-style pings.
	if err := r.ParseForm(); err != nil {
		return payload, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ipn body")
	}

	payload.IPNToken = strings.TrimSpace(r.Form.Get("ipn_token"))
	payload.Status = strings.TrimSpace(r.Form.Get("status"))
	if v := strings.TrimSpace(r.Form.Get("txid_out")); v != "" {
		payload.TxidOut = &v
	}
	if v := strings.TrimSpace(r.Form.Get("coin")); v != "" {
		payload.Coin = &v
	}
	if v := strings.TrimSpace(r.Form.Get("value_coin")); v != "" {
		payload.ValueInCoin = &v
	}
	return payload, nil
}

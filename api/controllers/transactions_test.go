package controllers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rrsoftech/agencypay-backend/api/middleware"
	"github.com/rrsoftech/agencypay-backend/internal/reconcile"
	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
)

type stubReconcileService struct {
	proofInput reconcile.SubmitProofInput
	approved   []uuid.UUID
	rejected   []uuid.UUID
}

func (s *stubReconcileService) HandleIPN(context.Context, reconcile.IPNInput) (*models.Transaction, error) {
	return nil, nil
}

func (s *stubReconcileService) ReconcilePending(context.Context) (reconcile.PollSummary, error) {
	return reconcile.PollSummary{}, nil
}

func (s *stubReconcileService) SubmitProof(_ context.Context, input reconcile.SubmitProofInput) (*models.Transaction, error) {
	s.proofInput = input
	return &models.Transaction{ID: input.TransactionID, Status: enums.TransactionStatusVerifying}, nil
}

func (s *stubReconcileService) Approve(_ context.Context, input reconcile.ReviewInput) (*models.Transaction, error) {
	s.approved = append(s.approved, input.TransactionID)
	return &models.Transaction{ID: input.TransactionID, Status: enums.TransactionStatusSuccess}, nil
}

func (s *stubReconcileService) Reject(_ context.Context, input reconcile.ReviewInput) (*models.Transaction, error) {
	s.rejected = append(s.rejected, input.TransactionID)
	return &models.Transaction{ID: input.TransactionID, Status: enums.TransactionStatusFailed}, nil
}

func authedRequest(method, target string, body *bytes.Buffer, role enums.UserRole) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestSubmitProofForwardsMultipartFields(t *testing.T) {
	svc := &stubReconcileService{}
	handler := TransactionSubmitProof(svc, nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("reference_number", "  WIRE-2024-001  "); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := writer.CreateFormFile("screenshot", "receipt.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}); err != nil {
		t.Fatalf("write file: %v", err)
	}
	writer.Close()

	transactionID := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/transactions/"+transactionID.String()+"/proof", &buf, enums.UserRoleCustomer)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req = withURLParam(req, "transactionId", transactionID.String())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.proofInput.TransactionID != transactionID {
		t.Fatalf("expected transaction id forwarded, got %s", svc.proofInput.TransactionID)
	}
	if svc.proofInput.ReferenceNumber == nil || *svc.proofInput.ReferenceNumber != "WIRE-2024-001" {
		t.Fatalf("expected trimmed reference number, got %+v", svc.proofInput.ReferenceNumber)
	}
	if len(svc.proofInput.Screenshot) == 0 {
		t.Fatalf("expected screenshot bytes forwarded")
	}
}

func TestSubmitProofReferenceOnly(t *testing.T) {
	svc := &stubReconcileService{}
	handler := TransactionSubmitProof(svc, nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("reference_number", "REF-77"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	writer.Close()

	transactionID := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/transactions/"+transactionID.String()+"/proof", &buf, enums.UserRoleCustomer)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req = withURLParam(req, "transactionId", transactionID.String())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.proofInput.Screenshot != nil {
		t.Fatalf("expected no screenshot bytes, got %d", len(svc.proofInput.Screenshot))
	}
}

func TestSubmitProofRejectsNonMultipart(t *testing.T) {
	svc := &stubReconcileService{}
	handler := TransactionSubmitProof(svc, nil)

	transactionID := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/transactions/"+transactionID.String()+"/proof",
		bytes.NewBufferString(`{"reference_number":"REF"}`), enums.UserRoleCustomer)
	req.Header.Set("Content-Type", "application/json")
	req = withURLParam(req, "transactionId", transactionID.String())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", resp.Code)
	}
}

func TestReviewEndpointsForwardTransactionID(t *testing.T) {
	svc := &stubReconcileService{}
	transactionID := uuid.New()

	req := authedRequest(http.MethodPost, "/api/v1/transactions/"+transactionID.String()+"/approve", nil, enums.UserRoleEmployee)
	req = withURLParam(req, "transactionId", transactionID.String())
	resp := httptest.NewRecorder()
	TransactionApprove(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("approve expected 200, got %d", resp.Code)
	}
	if len(svc.approved) != 1 || svc.approved[0] != transactionID {
		t.Fatalf("expected approve forwarded, got %v", svc.approved)
	}

	req = authedRequest(http.MethodPost, "/api/v1/transactions/"+transactionID.String()+"/reject", nil, enums.UserRoleEmployee)
	req = withURLParam(req, "transactionId", transactionID.String())
	resp = httptest.NewRecorder()
	TransactionReject(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("reject expected 200, got %d", resp.Code)
	}
	if len(svc.rejected) != 1 || svc.rejected[0] != transactionID {
		t.Fatalf("expected reject forwarded, got %v", svc.rejected)
	}
}

package reconcile

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rrsoftech/agencypay-backend/internal/transactions"
	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
	"github.com/rrsoftech/agencypay-backend/pkg/pagination"
	"github.com/rrsoftech/agencypay-backend/pkg/riskpay"
)

// stubTransactionsRepo hands out detached copies the way a real query does,
// so a driver's loaded row can go stale while stored state moves on.
// afterRead, when set, runs once after a transaction read to simulate a
// concurrent commit landing between the read and the driver's writes.
type stubTransactionsRepo struct {
	transactions map[uuid.UUID]*models.Transaction
	milestones   map[uuid.UUID]*models.Milestone
	orders       map[uuid.UUID]*models.Order
	afterRead    func()
}

func newStubTransactionsRepo() *stubTransactionsRepo {
	return &stubTransactionsRepo{
		transactions: make(map[uuid.UUID]*models.Transaction),
		milestones:   make(map[uuid.UUID]*models.Milestone),
		orders:       make(map[uuid.UUID]*models.Order),
	}
}

func (s *stubTransactionsRepo) WithTx(tx *gorm.DB) transactions.Repository { return s }

func (s *stubTransactionsRepo) interleave() {
	if s.afterRead != nil {
		hook := s.afterRead
		s.afterRead = nil
		hook()
	}
}

func (s *stubTransactionsRepo) Find(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	tr, ok := s.transactions[id]
	if !ok {
		return nil, nil
	}
	detached := *tr
	s.interleave()
	return &detached, nil
}

func (s *stubTransactionsRepo) FindByIPNToken(ctx context.Context, token string) (*models.Transaction, error) {
	for _, tr := range s.transactions {
		if tr.GatewayIPNToken != nil && *tr.GatewayIPNToken == token {
			detached := *tr
			s.interleave()
			return &detached, nil
		}
	}
	return nil, nil
}

func (s *stubTransactionsRepo) FindMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	return s.milestones[id], nil
}

func (s *stubTransactionsRepo) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.orders[id], nil
}

func (s *stubTransactionsRepo) UpdateSettlement(ctx context.Context, id uuid.UUID, txidOut, coinType *string, valueInCoin *decimal.Decimal) error {
	tr, ok := s.transactions[id]
	if !ok {
		return nil
	}
	tr.GatewayTxidOut = txidOut
	tr.GatewayCoinType = coinType
	if valueInCoin != nil {
		tr.GatewayValueInCoin = valueInCoin
	}
	return nil
}

func (s *stubTransactionsRepo) UpdateProof(ctx context.Context, id uuid.UUID, referenceNumber, screenshotPath *string) error {
	tr, ok := s.transactions[id]
	if !ok {
		return nil
	}
	if referenceNumber != nil {
		tr.ProofReferenceNumber = referenceNumber
	}
	if screenshotPath != nil {
		tr.ProofScreenshot = screenshotPath
	}
	return nil
}

func (s *stubTransactionsRepo) UpdateMilestoneStatus(ctx context.Context, id uuid.UUID, status enums.MilestoneStatus) error {
	if m, ok := s.milestones[id]; ok {
		m.Status = status
	}
	return nil
}

func (s *stubTransactionsRepo) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected []enums.TransactionStatus, next enums.TransactionStatus) (bool, error) {
	tr, ok := s.transactions[id]
	if !ok {
		return false, nil
	}
	for _, status := range expected {
		if tr.Status == status {
			tr.Status = next
			return true, nil
		}
	}
	return false, nil
}

func (s *stubTransactionsRepo) ListPendingWithToken(ctx context.Context) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tr := range s.transactions {
		if tr.Status == enums.TransactionStatusPending && tr.GatewayIPNToken != nil && *tr.GatewayIPNToken != "" {
			out = append(out, *tr)
		}
	}
	return out, nil
}

func (s *stubTransactionsRepo) List(ctx context.Context, query transactions.ListTransactionsQuery) ([]models.Transaction, *pagination.Cursor, error) {
	panic("not implemented")
}

type stubRecomputer struct {
	calls []uuid.UUID
}

func (s *stubRecomputer) RecomputeStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	s.calls = append(s.calls, orderID)
	return nil
}

type stubStatusQuerier struct {
	results map[string]*riskpay.StatusResult
	errs    map[string]error
	onQuery func()
}

func (s *stubStatusQuerier) QueryStatus(ctx context.Context, ipnToken string) (*riskpay.StatusResult, error) {
	if s.onQuery != nil {
		s.onQuery()
	}
	if err := s.errs[ipnToken]; err != nil {
		return nil, err
	}
	if result := s.results[ipnToken]; result != nil {
		return result, nil
	}
	return &riskpay.StatusResult{Status: "PENDING"}, nil
}

type stubProofSaver struct {
	saved   [][]byte
	removed []string
}

func (s *stubProofSaver) SaveProofImage(ctx context.Context, content []byte) (string, error) {
	s.saved = append(s.saved, content)
	return "proofs/fake.png", nil
}

func (s *stubProofSaver) RemoveProofImage(ctx context.Context, relPath string) error {
	s.removed = append(s.removed, relPath)
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fixture struct {
	repo       *stubTransactionsRepo
	recomputer *stubRecomputer
	gw         *stubStatusQuerier
	proofs     *stubProofSaver
	svc        Service

	orderID       uuid.UUID
	ownerID       uuid.UUID
	milestoneID   uuid.UUID
	transactionID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newStubTransactionsRepo()
	recomputer := &stubRecomputer{}
	gw := &stubStatusQuerier{
		results: make(map[string]*riskpay.StatusResult),
		errs:    make(map[string]error),
	}
	proofs := &stubProofSaver{}

	svc, err := NewService(repo, recomputer, gw, proofs, stubTxRunner{},
		logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	f := &fixture{
		repo:          repo,
		recomputer:    recomputer,
		gw:            gw,
		proofs:        proofs,
		svc:           svc,
		orderID:       uuid.New(),
		ownerID:       uuid.New(),
		milestoneID:   uuid.New(),
		transactionID: uuid.New(),
	}
	repo.orders[f.orderID] = &models.Order{ID: f.orderID, UserID: f.ownerID, Status: enums.OrderStatusAwaitingPayment}
	repo.milestones[f.milestoneID] = &models.Milestone{
		ID:      f.milestoneID,
		OrderID: f.orderID,
		Title:   "Design phase",
		Amount:  decimal.RequireFromString("100.00"),
		Status:  enums.MilestoneStatusPending,
	}
	token := "tok-123"
	milestoneID := f.milestoneID
	repo.transactions[f.transactionID] = &models.Transaction{
		ID:              f.transactionID,
		OrderID:         f.orderID,
		MilestoneID:     &milestoneID,
		ProviderName:    "USDT",
		Amount:          decimal.RequireFromString("112.00"),
		Status:          enums.TransactionStatusPending,
		GatewayIPNToken: &token,
	}
	return f
}

func ptr(s string) *string { return &s }

func TestHandleIPNValidatesToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.HandleIPN(context.Background(), IPNInput{IPNToken: " "})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for blank token, got %v", err)
	}

	_, err = f.svc.HandleIPN(context.Background(), IPNInput{IPNToken: "unknown"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown token, got %v", err)
	}
}

func TestHandleIPNAcceptSettlesTransaction(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.HandleIPN(context.Background(), IPNInput{
		IPNToken:    "tok-123",
		Status:      "ACCEPT",
		TxidOut:     ptr("0xabc"),
		Coin:        ptr("USDT"),
		ValueInCoin: ptr("111.95"),
	})
	if err != nil {
		t.Fatalf("handle ipn: %v", err)
	}

	if out.Status != enums.TransactionStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", out.Status)
	}
	if out.GatewayTxidOut == nil || *out.GatewayTxidOut != "0xabc" {
		t.Fatalf("txid_out not written")
	}
	if out.GatewayValueInCoin == nil || !out.GatewayValueInCoin.Equal(decimal.RequireFromString("111.95")) {
		t.Fatalf("value_coin not written")
	}
	if f.repo.milestones[f.milestoneID].Status != enums.MilestoneStatusPaid {
		t.Fatalf("milestone should be PAID")
	}
	if len(f.recomputer.calls) != 1 || f.recomputer.calls[0] != f.orderID {
		t.Fatalf("order recompute expected once")
	}
}

func TestHandleIPNNonAcceptFailsTransaction(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.HandleIPN(context.Background(), IPNInput{IPNToken: "tok-123", Status: "rejected"})
	if err != nil {
		t.Fatalf("handle ipn: %v", err)
	}
	if out.Status != enums.TransactionStatusFailed {
		t.Fatalf("expected FAILED, got %s", out.Status)
	}
	if f.repo.milestones[f.milestoneID].Status != enums.MilestoneStatusPending {
		t.Fatalf("failed transactions must not touch the milestone")
	}
	if len(f.recomputer.calls) != 0 {
		t.Fatalf("no recompute expected for failures")
	}
}

func TestHandleIPNIsIdempotentOnSuccess(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.HandleIPN(context.Background(), IPNInput{IPNToken: "tok-123", Status: "ACCEPT"}); err != nil {
		t.Fatalf("first ipn: %v", err)
	}
	if _, err := f.svc.HandleIPN(context.Background(), IPNInput{IPNToken: "tok-123", Status: "ACCEPT"}); err != nil {
		t.Fatalf("second ipn: %v", err)
	}

	if f.repo.transactions[f.transactionID].Status != enums.TransactionStatusSuccess {
		t.Fatalf("transaction must stay SUCCESS")
	}
	if len(f.recomputer.calls) != 1 {
		t.Fatalf("milestone side effect must apply once, recomputes: %d", len(f.recomputer.calls))
	}
}

func TestHandleIPNRejectNeverRegressesSuccess(t *testing.T) {
	f := newFixture(t)
	f.repo.transactions[f.transactionID].Status = enums.TransactionStatusSuccess

	out, err := f.svc.HandleIPN(context.Background(), IPNInput{IPNToken: "tok-123", Status: "REJECT"})
	if err != nil {
		t.Fatalf("handle ipn: %v", err)
	}
	if out.Status != enums.TransactionStatusSuccess {
		t.Fatalf("SUCCESS is a sink, got %s", out.Status)
	}
}

func TestReconcilePendingSweep(t *testing.T) {
	f := newFixture(t)

	// Second pending transaction that the gateway rejects.
	rejectedID := uuid.New()
	rejectedToken := "tok-rejected"
	f.repo.transactions[rejectedID] = &models.Transaction{
		ID:              rejectedID,
		OrderID:         f.orderID,
		ProviderName:    "USDT",
		Amount:          decimal.RequireFromString("50.00"),
		Status:          enums.TransactionStatusPending,
		GatewayIPNToken: &rejectedToken,
	}
	// Third transaction whose status query blows up.
	brokenID := uuid.New()
	brokenToken := "tok-broken"
	f.repo.transactions[brokenID] = &models.Transaction{
		ID:              brokenID,
		OrderID:         f.orderID,
		ProviderName:    "USDT",
		Amount:          decimal.RequireFromString("75.00"),
		Status:          enums.TransactionStatusPending,
		GatewayIPNToken: &brokenToken,
	}

	f.gw.results["tok-123"] = &riskpay.StatusResult{Status: "ACCEPT", TxidOut: ptr("0xabc")}
	f.gw.results["tok-rejected"] = &riskpay.StatusResult{Status: "REJECT"}
	f.gw.errs["tok-broken"] = errors.New("connection reset")

	summary, err := f.svc.ReconcilePending(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if summary.Checked != 3 {
		t.Fatalf("expected 3 checked, got %d", summary.Checked)
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("expected 1 success and 1 failure, got %d/%d", summary.Succeeded, summary.Failed)
	}
	if summary.Errors == nil {
		t.Fatalf("expected the broken token's error to be collected")
	}

	if f.repo.transactions[f.transactionID].Status != enums.TransactionStatusSuccess {
		t.Fatalf("accepted transaction should settle")
	}
	if f.repo.transactions[rejectedID].Status != enums.TransactionStatusFailed {
		t.Fatalf("rejected transaction should fail")
	}
	if f.repo.transactions[brokenID].Status != enums.TransactionStatusPending {
		t.Fatalf("broken transaction should stay pending")
	}
	if f.repo.milestones[f.milestoneID].Status != enums.MilestoneStatusPaid {
		t.Fatalf("settled milestone should be PAID")
	}
}

func TestReconcilePendingLeavesUnresolvedAlone(t *testing.T) {
	f := newFixture(t)
	// Default stub answer is a "PENDING" gateway status.

	summary, err := f.svc.ReconcilePending(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if summary.Succeeded != 0 || summary.Failed != 0 {
		t.Fatalf("nothing should resolve, got %d/%d", summary.Succeeded, summary.Failed)
	}
	if f.repo.transactions[f.transactionID].Status != enums.TransactionStatusPending {
		t.Fatalf("transaction should remain pending")
	}
}

func TestSubmitProofOwnerOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SubmitProof(context.Background(), SubmitProofInput{
		RequesterID:   uuid.New(),
		RequesterRole: enums.UserRoleCustomer,
		TransactionID: f.transactionID,
		Screenshot:    []byte("png"),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
}

func TestSubmitProofRequiresEvidence(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SubmitProof(context.Background(), SubmitProofInput{
		RequesterID:   f.ownerID,
		RequesterRole: enums.UserRoleCustomer,
		TransactionID: f.transactionID,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected missing-proof rejection, got %v", err)
	}
}

func TestSubmitProofMovesToVerifying(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.SubmitProof(context.Background(), SubmitProofInput{
		RequesterID:     f.ownerID,
		RequesterRole:   enums.UserRoleCustomer,
		TransactionID:   f.transactionID,
		ReferenceNumber: ptr("  REF-42 "),
		Screenshot:      []byte("png bytes"),
	})
	if err != nil {
		t.Fatalf("submit proof: %v", err)
	}

	if out.Status != enums.TransactionStatusVerifying {
		t.Fatalf("expected VERIFYING, got %s", out.Status)
	}
	if out.ProofReferenceNumber == nil || *out.ProofReferenceNumber != "REF-42" {
		t.Fatalf("reference number should be trimmed and stored")
	}
	if out.ProofScreenshot == nil || *out.ProofScreenshot != "proofs/fake.png" {
		t.Fatalf("screenshot path should be stored")
	}
	if len(f.proofs.saved) != 1 {
		t.Fatalf("screenshot should be written once")
	}
}

func TestSubmitProofRejectedOutsidePendingOrFailed(t *testing.T) {
	f := newFixture(t)

	for _, status := range []enums.TransactionStatus{enums.TransactionStatusVerifying, enums.TransactionStatusSuccess} {
		f.repo.transactions[f.transactionID].Status = status
		_, err := f.svc.SubmitProof(context.Background(), SubmitProofInput{
			RequesterID:   f.ownerID,
			RequesterRole: enums.UserRoleCustomer,
			TransactionID: f.transactionID,
			Screenshot:    []byte("png"),
		})
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
			t.Fatalf("expected state conflict from %s, got %v", status, err)
		}
	}

	// FAILED transactions may be re-submitted.
	f.repo.transactions[f.transactionID].Status = enums.TransactionStatusFailed
	out, err := f.svc.SubmitProof(context.Background(), SubmitProofInput{
		RequesterID:   f.ownerID,
		RequesterRole: enums.UserRoleCustomer,
		TransactionID: f.transactionID,
		Screenshot:    []byte("png"),
	})
	if err != nil {
		t.Fatalf("resubmit after failure: %v", err)
	}
	if out.Status != enums.TransactionStatusVerifying {
		t.Fatalf("expected VERIFYING after resubmission")
	}
}

func TestApproveAndRejectGuards(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Approve(context.Background(), ReviewInput{
		RequesterRole: enums.UserRoleCustomer,
		TransactionID: f.transactionID,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for customer approve, got %v", err)
	}

	f.repo.transactions[f.transactionID].Status = enums.TransactionStatusVerifying
	out, err := f.svc.Approve(context.Background(), ReviewInput{
		RequesterRole: enums.UserRoleEmployee,
		TransactionID: f.transactionID,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if out.Status != enums.TransactionStatusSuccess {
		t.Fatalf("expected SUCCESS after approve")
	}
	if f.repo.milestones[f.milestoneID].Status != enums.MilestoneStatusPaid {
		t.Fatalf("approve should mark the milestone PAID")
	}

	_, err = f.svc.Approve(context.Background(), ReviewInput{
		RequesterRole: enums.UserRoleEmployee,
		TransactionID: f.transactionID,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected already-successful guard, got %v", err)
	}

	_, err = f.svc.Reject(context.Background(), ReviewInput{
		RequesterRole: enums.UserRoleEmployee,
		TransactionID: f.transactionID,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected cannot-reject-success guard, got %v", err)
	}
}

func TestRejectFailsVerifyingTransaction(t *testing.T) {
	f := newFixture(t)
	f.repo.transactions[f.transactionID].Status = enums.TransactionStatusVerifying

	out, err := f.svc.Reject(context.Background(), ReviewInput{
		RequesterRole: enums.UserRoleOwner,
		TransactionID: f.transactionID,
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if out.Status != enums.TransactionStatusFailed {
		t.Fatalf("expected FAILED after reject")
	}
	if f.repo.milestones[f.milestoneID].Status != enums.MilestoneStatusPending {
		t.Fatalf("reject must not touch the milestone")
	}
}

func TestHandleIPNRejectLosesToInterleavedApproval(t *testing.T) {
	f := newFixture(t)
	// A staff approval commits SUCCESS between the webhook's read and its
	// writes.
	f.repo.afterRead = func() {
		f.repo.transactions[f.transactionID].Status = enums.TransactionStatusSuccess
	}

	out, err := f.svc.HandleIPN(context.Background(), IPNInput{
		IPNToken: "tok-123",
		Status:   "REJECT",
		TxidOut:  ptr("0xabc"),
	})
	if err != nil {
		t.Fatalf("handle ipn: %v", err)
	}

	stored := f.repo.transactions[f.transactionID]
	if stored.Status != enums.TransactionStatusSuccess {
		t.Fatalf("interleaved approval must survive the webhook, got %s", stored.Status)
	}
	if out.Status != enums.TransactionStatusSuccess {
		t.Fatalf("webhook should report the settled status, got %s", out.Status)
	}
	if stored.GatewayTxidOut == nil || *stored.GatewayTxidOut != "0xabc" {
		t.Fatalf("settlement fields should still be recorded")
	}
}

func TestReconcilePendingLosesToInterleavedApproval(t *testing.T) {
	f := newFixture(t)
	f.gw.results["tok-123"] = &riskpay.StatusResult{Status: "REJECT"}
	// Approval lands while the poller is waiting on the gateway.
	f.gw.onQuery = func() {
		f.repo.transactions[f.transactionID].Status = enums.TransactionStatusSuccess
		f.gw.onQuery = nil
	}

	summary, err := f.svc.ReconcilePending(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("poller counts the gateway verdict, got %d failed", summary.Failed)
	}
	if f.repo.transactions[f.transactionID].Status != enums.TransactionStatusSuccess {
		t.Fatalf("interleaved approval must survive the poller")
	}
}

func TestSubmitProofLosesToInterleavedApproval(t *testing.T) {
	f := newFixture(t)
	f.repo.afterRead = func() {
		f.repo.transactions[f.transactionID].Status = enums.TransactionStatusSuccess
	}

	_, err := f.svc.SubmitProof(context.Background(), SubmitProofInput{
		RequesterID:   f.ownerID,
		RequesterRole: enums.UserRoleCustomer,
		TransactionID: f.transactionID,
		Screenshot:    []byte("png"),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict after interleaved approval, got %v", err)
	}

	stored := f.repo.transactions[f.transactionID]
	if stored.Status != enums.TransactionStatusSuccess {
		t.Fatalf("interleaved approval must survive the proof submission")
	}
	if stored.ProofScreenshot != nil {
		t.Fatalf("proof columns must not be written to a settled transaction")
	}
	if len(f.proofs.removed) != 1 || f.proofs.removed[0] != "proofs/fake.png" {
		t.Fatalf("orphaned screenshot should be cleaned up, removed: %v", f.proofs.removed)
	}
}

func TestReconcilePendingSkipsBlankTokens(t *testing.T) {
	f := newFixture(t)
	blankID := uuid.New()
	blank := ""
	f.repo.transactions[blankID] = &models.Transaction{
		ID:              blankID,
		OrderID:         f.orderID,
		ProviderName:    "USDT",
		Amount:          decimal.RequireFromString("10.00"),
		Status:          enums.TransactionStatusPending,
		GatewayIPNToken: &blank,
	}

	summary, err := f.svc.ReconcilePending(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if summary.Checked != 1 {
		t.Fatalf("blank-token transactions must not reach the gateway, checked %d", summary.Checked)
	}
}

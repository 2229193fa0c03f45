package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rrsoftech/agencypay-backend/internal/transactions"
	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
	"github.com/rrsoftech/agencypay-backend/pkg/riskpay"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// statusQuerier is the slice of the gateway client the poller needs.
type statusQuerier interface {
	QueryStatus(ctx context.Context, ipnToken string) (*riskpay.StatusResult, error)
}

// orderRecomputer re-derives the parent order's status after a milestone flip.
type orderRecomputer interface {
	RecomputeStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// proofSaver persists an uploaded proof screenshot and returns its path.
// Remove undoes a save whose transaction did not land.
type proofSaver interface {
	SaveProofImage(ctx context.Context, content []byte) (string, error)
	RemoveProofImage(ctx context.Context, relPath string) error
}

// Service is the reconciliation engine. Webhook, poller, and manual review
// all converge on the same compare-and-set transition, so a stale driver can
// never regress a settled transaction.
type Service interface {
	HandleIPN(ctx context.Context, input IPNInput) (*models.Transaction, error)
	ReconcilePending(ctx context.Context) (PollSummary, error)
	SubmitProof(ctx context.Context, input SubmitProofInput) (*models.Transaction, error)
	Approve(ctx context.Context, input ReviewInput) (*models.Transaction, error)
	Reject(ctx context.Context, input ReviewInput) (*models.Transaction, error)
}

// IPNInput is the webhook payload. Trust is via token possession.
type IPNInput struct {
	IPNToken    string
	Status      string
	TxidOut     *string
	Coin        *string
	ValueInCoin *string
}

// PollSummary reports one poller sweep.
type PollSummary struct {
	Checked   int
	Succeeded int
	Failed    int
	Errors    error
}

// SubmitProofInput attaches manual payment evidence to a transaction.
type SubmitProofInput struct {
	RequesterID     uuid.UUID
	RequesterRole   enums.UserRole
	TransactionID   uuid.UUID
	ReferenceNumber *string
	Screenshot      []byte
}

// ReviewInput identifies a transaction for staff approval or rejection.
type ReviewInput struct {
	RequesterRole enums.UserRole
	TransactionID uuid.UUID
}

type service struct {
	repo    transactions.Repository
	orders  orderRecomputer
	gateway statusQuerier
	proofs  proofSaver
	tx      txRunner
	logg    *logger.Logger
}

// NewService builds the reconciliation engine.
func NewService(
	repo transactions.Repository,
	orders orderRecomputer,
	gateway statusQuerier,
	proofs proofSaver,
	tx txRunner,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order recomputer required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if proofs == nil {
		return nil, fmt.Errorf("proof saver required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, orders: orders, gateway: gateway, proofs: proofs, tx: tx, logg: logg}, nil
}

// expected source states for each terminal transition. SUCCESS is a sink:
// no driver may move a transaction out of it.
var (
	statesBeforeSuccess = []enums.TransactionStatus{
		enums.TransactionStatusPending,
		enums.TransactionStatusVerifying,
		enums.TransactionStatusFailed,
	}
	statesBeforeFailed = []enums.TransactionStatus{
		enums.TransactionStatusPending,
		enums.TransactionStatusVerifying,
	}
)

func (s *service) HandleIPN(ctx context.Context, input IPNInput) (*models.Transaction, error) {
	if strings.TrimSpace(input.IPNToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ipn_token required")
	}

	transaction, err := s.repo.FindByIPNToken(ctx, input.IPNToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up transaction by token")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown ipn token")
	}

	ctx = s.logg.WithTransactionID(ctx, transaction.ID.String())

	result := riskpay.StatusResult{Status: input.Status}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// Gateway settlement fields are written regardless of outcome. The
		// write is scoped to those columns: status only ever moves through
		// the compare-and-set, so a row settled between our read and this
		// write keeps its settled status.
		transaction.GatewayTxidOut = input.TxidOut
		transaction.GatewayCoinType = input.Coin
		var value *decimal.Decimal
		if input.ValueInCoin != nil {
			parsed, parseErr := parseCoinValue(*input.ValueInCoin)
			if parseErr != nil {
				s.logg.Warn(ctx, "unparseable value_coin in ipn payload")
			} else {
				value = parsed
				transaction.GatewayValueInCoin = parsed
			}
		}
		if err := repo.UpdateSettlement(ctx, transaction.ID, input.TxidOut, input.Coin, value); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist ipn fields")
		}

		if result.Accepted() {
			return s.resolve(ctx, repo, tx, transaction, enums.TransactionStatusSuccess)
		}
		return s.resolve(ctx, repo, tx, transaction, enums.TransactionStatusFailed)
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "ipn processed")
	return transaction, nil
}

// ReconcilePending sweeps all pending transactions that hold a gateway token
// and asks the gateway to settle them. Per-item failures are collected, never
// fatal to the sweep.
func (s *service) ReconcilePending(ctx context.Context) (PollSummary, error) {
	pending, err := s.repo.ListPendingWithToken(ctx)
	if err != nil {
		return PollSummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending transactions")
	}

	summary := PollSummary{Checked: len(pending)}
	for i := range pending {
		transaction := &pending[i]
		itemCtx := s.logg.WithTransactionID(ctx, transaction.ID.String())

		result, err := s.gateway.QueryStatus(itemCtx, *transaction.GatewayIPNToken)
		if err != nil {
			s.logg.Error(itemCtx, "gateway status query failed", err)
			summary.Errors = multierr.Append(summary.Errors, err)
			continue
		}

		switch {
		case result.Accepted():
			if err := s.resolveInTx(itemCtx, transaction, result, enums.TransactionStatusSuccess); err != nil {
				s.logg.Error(itemCtx, "resolve accepted transaction", err)
				summary.Errors = multierr.Append(summary.Errors, err)
				continue
			}
			summary.Succeeded++
			s.logg.Info(itemCtx, "transaction settled by poller")
		case result.Rejected():
			if err := s.resolveInTx(itemCtx, transaction, result, enums.TransactionStatusFailed); err != nil {
				s.logg.Error(itemCtx, "resolve rejected transaction", err)
				summary.Errors = multierr.Append(summary.Errors, err)
				continue
			}
			summary.Failed++
			s.logg.Info(itemCtx, "transaction failed by poller")
		default:
			s.logg.Info(itemCtx, "transaction still pending at gateway")
		}
	}
	return summary, nil
}

func (s *service) SubmitProof(ctx context.Context, input SubmitProofInput) (*models.Transaction, error) {
	transaction, err := s.repo.Find(ctx, input.TransactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}

	order, err := s.repo.FindOrder(ctx, transaction.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil || order.UserID != input.RequesterID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "transaction does not belong to user")
	}

	if transaction.Status != enums.TransactionStatusPending && transaction.Status != enums.TransactionStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "proof not accepted in the current transaction state")
	}
	hasReference := input.ReferenceNumber != nil && strings.TrimSpace(*input.ReferenceNumber) != ""
	if !hasReference && len(input.Screenshot) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a reference number or screenshot is required")
	}

	var screenshotPath *string
	if len(input.Screenshot) > 0 {
		path, err := s.proofs.SaveProofImage(ctx, input.Screenshot)
		if err != nil {
			return nil, err
		}
		screenshotPath = &path
		transaction.ProofScreenshot = &path
	}
	var reference *string
	if hasReference {
		trimmed := strings.TrimSpace(*input.ReferenceNumber)
		reference = &trimmed
		transaction.ProofReferenceNumber = &trimmed
	}

	ctx = s.logg.WithTransactionID(ctx, transaction.ID.String())
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// Flip the status first: if the row settled since our read, nothing
		// else may be written to it.
		landed, err := repo.CompareAndSetStatus(ctx, transaction.ID,
			[]enums.TransactionStatus{enums.TransactionStatusPending, enums.TransactionStatusFailed},
			enums.TransactionStatusVerifying)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move transaction to verifying")
		}
		if !landed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proof not accepted in the current transaction state")
		}
		if err := repo.UpdateProof(ctx, transaction.ID, reference, screenshotPath); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist proof")
		}
		transaction.Status = enums.TransactionStatusVerifying
		return nil
	})
	if err != nil {
		if screenshotPath != nil {
			if removeErr := s.proofs.RemoveProofImage(ctx, *screenshotPath); removeErr != nil {
				s.logg.Error(ctx, "remove screenshot after failed proof submission", removeErr)
			}
		}
		return nil, err
	}

	s.logg.Info(ctx, "payment proof submitted")
	return transaction, nil
}

func (s *service) Approve(ctx context.Context, input ReviewInput) (*models.Transaction, error) {
	if !input.RequesterRole.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}

	transaction, err := s.repo.Find(ctx, input.TransactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if transaction.Status == enums.TransactionStatusSuccess {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already successful")
	}

	ctx = s.logg.WithTransactionID(ctx, transaction.ID.String())
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.resolve(ctx, s.repo.WithTx(tx), tx, transaction, enums.TransactionStatusSuccess)
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "transaction approved")
	return transaction, nil
}

func (s *service) Reject(ctx context.Context, input ReviewInput) (*models.Transaction, error) {
	if !input.RequesterRole.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}

	transaction, err := s.repo.Find(ctx, input.TransactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if transaction.Status == enums.TransactionStatusSuccess {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cannot reject a successful transaction")
	}

	ctx = s.logg.WithTransactionID(ctx, transaction.ID.String())
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.resolve(ctx, s.repo.WithTx(tx), tx, transaction, enums.TransactionStatusFailed)
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "transaction rejected")
	return transaction, nil
}

// resolveInTx wraps a poller-driven resolution in its own transaction and
// persists any settlement data the gateway returned alongside the flip.
func (s *service) resolveInTx(ctx context.Context, transaction *models.Transaction, result *riskpay.StatusResult, next enums.TransactionStatus) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		transaction.GatewayTxidOut = result.TxidOut
		transaction.GatewayCoinType = result.Coin
		transaction.GatewayValueInCoin = result.ValueInCoin
		if err := repo.UpdateSettlement(ctx, transaction.ID, result.TxidOut, result.Coin, result.ValueInCoin); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist gateway settlement data")
		}
		return s.resolve(ctx, repo, tx, transaction, next)
	})
}

// resolve is the single transition function all drivers converge on. The
// compare-and-set guarantees idempotence and keeps SUCCESS a fixed point;
// losing the race is a quiet no-op, not an error.
func (s *service) resolve(ctx context.Context, repo transactions.Repository, tx *gorm.DB, transaction *models.Transaction, next enums.TransactionStatus) error {
	expected := statesBeforeFailed
	if next == enums.TransactionStatusSuccess {
		expected = statesBeforeSuccess
	}

	landed, err := repo.CompareAndSetStatus(ctx, transaction.ID, expected, next)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update transaction status")
	}
	if !landed {
		// Lost the race; report whatever status won it.
		current, err := repo.Find(ctx, transaction.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload transaction")
		}
		if current != nil {
			transaction.Status = current.Status
		}
		return nil
	}
	transaction.Status = next

	if next != enums.TransactionStatusSuccess || transaction.MilestoneID == nil {
		return nil
	}

	milestone, err := repo.FindMilestone(ctx, *transaction.MilestoneID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load milestone")
	}
	if milestone == nil {
		return nil
	}
	if milestone.Status != enums.MilestoneStatusPaid {
		if err := repo.UpdateMilestoneStatus(ctx, milestone.ID, enums.MilestoneStatusPaid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark milestone paid")
		}
	}
	return s.orders.RecomputeStatus(ctx, tx, milestone.OrderID)
}

func parseCoinValue(raw string) (*decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	return &value, nil
}

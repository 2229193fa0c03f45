package cron

import (
	"context"
	"fmt"

	"github.com/rrsoftech/agencypay-backend/internal/reconcile"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
)

const paymentStatusJobName = "payment_status_poll"

// pendingReconciler sweeps pending gateway transactions.
type pendingReconciler interface {
	ReconcilePending(ctx context.Context) (reconcile.PollSummary, error)
}

// PaymentStatusJobParams configures the payment status poller job.
type PaymentStatusJobParams struct {
	Logger     *logger.Logger
	Reconciler pendingReconciler
}

type paymentStatusJob struct {
	logg       *logger.Logger
	reconciler pendingReconciler
}

// NewPaymentStatusJob constructs the job that polls the gateway for every
// pending transaction holding an IPN token.
func NewPaymentStatusJob(params PaymentStatusJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &paymentStatusJob{logg: params.Logger, reconciler: params.Reconciler}, nil
}

func (j *paymentStatusJob) Name() string { return paymentStatusJobName }

// Run performs one sweep. Per-transaction gateway errors are already logged
// and collected inside the reconciler; they don't fail the job, only a
// failure to enumerate pending transactions does.
func (j *paymentStatusJob) Run(ctx context.Context) error {
	summary, err := j.reconciler.ReconcilePending(ctx)
	if err != nil {
		return err
	}

	ctx = j.logg.WithField(ctx, "checked", summary.Checked)
	ctx = j.logg.WithField(ctx, "succeeded", summary.Succeeded)
	ctx = j.logg.WithField(ctx, "failed", summary.Failed)
	if summary.Errors != nil {
		j.logg.Error(ctx, "some pending transactions could not be reconciled", summary.Errors)
		return nil
	}
	j.logg.Info(ctx, "payment status sweep complete")
	return nil
}

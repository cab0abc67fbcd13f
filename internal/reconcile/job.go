package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// AuditJob runs a read-only audit over every campaign
type AuditJob struct {
	r       *Reconciler
	logger  *zap.Logger
	timeout time.Duration
}

// NewAuditJob creates an audit job bounded by timeout per run
func NewAuditJob(r *Reconciler, logger *zap.Logger, timeout time.Duration) *AuditJob {
	return &AuditJob{r: r, logger: logger, timeout: timeout}
}

func (j *AuditJob) Name() string { return "ledger_audit" }

// Run audits all campaigns and logs the ones out of balance
func (j *AuditJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	report, err := j.r.Audit(ctx, "")
	if err != nil {
		return err
	}
	for _, d := range report.Dirty() {
		j.logger.Warn("campaign out of balance",
			zap.String("campaign_id", d.CampaignID),
			zap.Int("remaining_uses", d.RemainingUses),
			zap.Int("consumed", d.Consumed),
			zap.Int("drift", d.Drift),
			zap.Int("orphans", d.Orphans),
			zap.Int("stray_claims", d.StrayClaims))
	}
	return nil
}

// Schedule registers the job on a new cron scheduler. Overlapping runs are skipped.
func Schedule(spec string, job *AuditJob, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddJob(spec, cron.FuncJob(func() {
		start := time.Now()
		if err := job.Run(); err != nil {
			logger.Error("job failed",
				zap.String("job", job.Name()),
				zap.Error(err))
		}
		logger.Debug("job finished",
			zap.String("job", job.Name()),
			zap.Duration("duration", time.Since(start)))
	}))
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return c, nil
}

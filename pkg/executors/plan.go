package executors

import (
	"context"

	"github.com/yurifrl/paybills/pkg/report"
)

// Plan reconciles the run and plans the write-back batch without sending
// it: the payload lists what Apply would try to create under
// payments_planned.
func (e *Executor) Plan(ctx context.Context, run Run) (*report.Payload, error) {
	e.logger.Debug("planning run", "workbook", run.Workbook)
	return e.execute(ctx, run, false)
}

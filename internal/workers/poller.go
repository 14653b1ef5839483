package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/chainline/chainline/internal/backoff"
	"github.com/chainline/chainline/internal/pipeline"
	"github.com/chainline/chainline/internal/warehouse"
)

// poller drives remote jobs toward a terminal state within one invocation's
// wall-clock budget. The budget stays well under the harness's ack deadline
// so an invocation never blocks past its slice; unfinished jobs hand off to
// a JobWaiter continuation instead.
type poller struct {
	budget time.Duration
	boff   backoff.Backoff
	now    func() time.Time
	sleep  func(time.Duration)
}

// beginAndWait starts every job that is not already running, then polls until
// all of them finish or the budget runs out. It returns true when every job
// reached DONE. On budget exhaustion it yields exactly one JobWaiter item
// carrying the job IDs plus the caller's follow-on context, and returns
// false.
func (p poller) beginAndWait(ctx context.Context, base *pipeline.Base, yield pipeline.YieldFunc, retry pipeline.RetryPolicy, project string, jobs []warehouse.Job) (bool, error) {
	for _, job := range jobs {
		job := job
		if err := retry.Do(ctx, "job.begin", func() error {
			return job.Begin(ctx)
		}); err != nil {
			return false, err
		}
	}

	deadline := p.now().Add(p.budget)
	for attempt := 0; ; attempt++ {
		done := true
		for _, job := range jobs {
			if err := retry.Do(ctx, "job.reload", func() error {
				return job.Reload(ctx)
			}); err != nil {
				return false, err
			}
			if jobErr := job.Err(); jobErr != nil {
				return false, &pipeline.JobError{
					JobID:  job.ID(),
					Reason: "job finished in error state",
					Detail: jobErr.Error(),
				}
			}
			if job.State() != warehouse.Done {
				done = false
			}
		}
		if done {
			return true, nil
		}
		if !p.now().Before(deadline) {
			break
		}
		p.sleep(p.boff.Duration(attempt))
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
	}

	jobIDs := make([]string, 0, len(jobs))
	for _, job := range jobs {
		jobIDs = append(jobIDs, job.ID())
	}
	base.LogInfo(ctx, fmt.Sprintf("poll budget exhausted, handing %d job(s) to waiter", len(jobIDs)))
	params := map[string]any{
		"project_id":     project,
		"job_ids":        jobIDs,
		"on_done_worker": base.Params().String("on_done_worker"),
		"on_done_params": base.Params().String("on_done_params"),
	}
	if err := yield(base.Enqueue(TypeJobWaiter, params)); err != nil {
		return false, err
	}
	return false, nil
}

func queryRunnerDefinition(deps Deps) pipeline.Definition {
	spec := []pipeline.ParamSpec{
		{Name: "project_id", Kind: pipeline.KindString, Required: true, Description: "warehouse project to bill the query to"},
		{Name: "query", Kind: pipeline.KindString, Required: true, Description: "query text"},
		{Name: "legacy_sql", Kind: pipeline.KindBoolean, Default: false, Description: "use the legacy SQL dialect"},
		{Name: "dataset_id", Kind: pipeline.KindString, Description: "destination dataset; empty for an anonymous result table"},
		{Name: "table_id", Kind: pipeline.KindString, Description: "destination table"},
		{Name: "write_disposition", Kind: pipeline.KindString, Default: "WRITE_TRUNCATE", Description: "destination write disposition"},
	}
	spec = append(spec, followOnSpec()...)

	return pipeline.Definition{
		Name: TypeQueryRunner,
		Spec: spec,
		Factory: func(base *pipeline.Base) (pipeline.WorkFunc, error) {
			return func(ctx context.Context, yield pipeline.YieldFunc) error {
				params := base.Params()
				querySpec := warehouse.QuerySpec{
					Project: params.String("project_id"),
					Query:   params.String("query"),
					Legacy:  params.Bool("legacy_sql"),
				}
				if params.String("table_id") != "" {
					querySpec.Destination = &warehouse.TableRef{
						Project: params.String("project_id"),
						Dataset: params.String("dataset_id"),
						Table:   params.String("table_id"),
					}
					querySpec.WriteDisposition = params.String("write_disposition")
				}
				job := deps.Jobs.QueryJob(querySpec)
				base.LogInfo(ctx, "starting query job")
				done, err := deps.poller().beginAndWait(ctx, base, yield, deps.Retry, querySpec.Project, []warehouse.Job{job})
				if err != nil || !done {
					return err
				}
				return yieldFollowOn(base, yield)
			}, nil
		},
	}
}

func jobWaiterDefinition(deps Deps) pipeline.Definition {
	spec := []pipeline.ParamSpec{
		{Name: "project_id", Kind: pipeline.KindString, Required: true, Description: "project owning the tracked jobs"},
		{Name: "job_ids", Kind: pipeline.KindStringList, Required: true, Description: "IDs of the jobs to poll"},
	}
	spec = append(spec, followOnSpec()...)

	return pipeline.Definition{
		Name: TypeJobWaiter,
		Spec: spec,
		Factory: func(base *pipeline.Base) (pipeline.WorkFunc, error) {
			return func(ctx context.Context, yield pipeline.YieldFunc) error {
				params := base.Params()
				project := params.String("project_id")
				jobIDs := params.StringList("job_ids")
				jobs := make([]warehouse.Job, 0, len(jobIDs))
				for _, id := range jobIDs {
					jobs = append(jobs, deps.Jobs.JobFromID(project, id))
				}
				done, err := deps.poller().beginAndWait(ctx, base, yield, deps.Retry, project, jobs)
				if err != nil || !done {
					return err
				}
				base.LogInfo(ctx, "all tracked jobs completed")
				return yieldFollowOn(base, yield)
			}, nil
		},
	}
}

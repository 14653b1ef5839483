// Package workers implements the concrete worker fleet: warehouse query and
// load runners, the job waiter that bridges externally asynchronous jobs
// across invocation time budgets, and the paginated processor/orchestrator
// pair that ships table rows to the analytics sink.
package workers

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/chainline/chainline/internal/backoff"
	"github.com/chainline/chainline/internal/objstore"
	"github.com/chainline/chainline/internal/pipeline"
	"github.com/chainline/chainline/internal/warehouse"
)

// Registered worker type names.
const (
	TypeQueryRunner           = "QueryRunner"
	TypeJobWaiter             = "JobWaiter"
	TypeStorageLoader         = "StorageLoader"
	TypeAnalyticsProcessor    = "AnalyticsProcessor"
	TypeAnalyticsOrchestrator = "AnalyticsOrchestrator"
)

// Sink ships one batch of form-encoded records.
type Sink interface {
	Send(ctx context.Context, records []url.Values) error
}

// Deps carries the external collaborators the fleet closes over at
// registration. Now and Sleep default to the real clock; tests inject stubs
// so poll loops run synchronously.
type Deps struct {
	Jobs   warehouse.JobService
	Pages  warehouse.PageReader
	Lister objstore.Lister
	Sink   Sink
	Retry  pipeline.RetryPolicy

	// Poll loop tuning. Zero values take the package defaults.
	PollBudget   time.Duration
	PollSchedule []time.Duration

	Now   func() time.Time
	Sleep func(time.Duration)
}

const defaultPollBudget = 30 * time.Second

func defaultPollSchedule() []time.Duration {
	return []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 30 * time.Second}
}

func (d Deps) poller() poller {
	p := poller{
		budget: d.PollBudget,
		boff:   &backoff.ScheduledBackoff{Schedule: d.PollSchedule},
		now:    d.Now,
		sleep:  d.Sleep,
	}
	if p.budget <= 0 {
		p.budget = defaultPollBudget
	}
	if len(d.PollSchedule) == 0 {
		p.boff = &backoff.ScheduledBackoff{Schedule: defaultPollSchedule()}
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.sleep == nil {
		p.sleep = time.Sleep
	}
	return p
}

// RegisterAll registers the whole fleet in reg.
func RegisterAll(reg *pipeline.Registry, deps Deps) {
	reg.MustRegister(queryRunnerDefinition(deps))
	reg.MustRegister(jobWaiterDefinition(deps))
	reg.MustRegister(storageLoaderDefinition(deps))
	reg.MustRegister(analyticsProcessorDefinition(deps))
	reg.MustRegister(analyticsOrchestratorDefinition(deps))
}

// followOnSpec declares the optional "what to run once the job is done"
// parameters shared by every job-starting worker. The follow-on params
// travel as a JSON object string so they survive the queue round trip
// without schema knowledge.
func followOnSpec() []pipeline.ParamSpec {
	return []pipeline.ParamSpec{
		{Name: "on_done_worker", Kind: pipeline.KindString, Description: "worker type to enqueue once the job completes"},
		{Name: "on_done_params", Kind: pipeline.KindString, Default: "{}", Description: "JSON object of parameters for the follow-on worker"},
	}
}

func yieldFollowOn(base *pipeline.Base, yield pipeline.YieldFunc) error {
	name := base.Params().String("on_done_worker")
	if name == "" {
		return nil
	}
	raw := base.Params().String("on_done_params")
	if raw == "" {
		raw = "{}"
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return pipeline.NewConfigurationError("on_done_params", err.Error())
	}
	return yield(base.Enqueue(name, params))
}

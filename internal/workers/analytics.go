package workers

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/chainline/chainline/internal/pipeline"
	"github.com/chainline/chainline/internal/warehouse"
)

func analyticsSourceSpec() []pipeline.ParamSpec {
	return []pipeline.ParamSpec{
		{Name: "project_id", Kind: pipeline.KindString, Required: true, Description: "warehouse project"},
		{Name: "dataset_id", Kind: pipeline.KindString, Required: true, Description: "source dataset"},
		{Name: "table_id", Kind: pipeline.KindString, Required: true, Description: "source table"},
		{Name: "page_token", Kind: pipeline.KindString, Description: "read cursor; empty means start of table"},
		{Name: "page_size", Kind: pipeline.KindNumber, Default: 1000, Description: "rows per page read"},
		{Name: "mp_batch_size", Kind: pipeline.KindNumber, Default: 20, Description: "records per sink batch"},
	}
}

// analyticsProcessorDefinition ships exactly one page of rows to the sink.
// It never requests the next page; chaining pages is the orchestrator's job.
func analyticsProcessorDefinition(deps Deps) pipeline.Definition {
	return pipeline.Definition{
		Name: TypeAnalyticsProcessor,
		Spec: analyticsSourceSpec(),
		Factory: func(base *pipeline.Base) (pipeline.WorkFunc, error) {
			return func(ctx context.Context, yield pipeline.YieldFunc) error {
				params := base.Params()
				req := warehouse.PageRequest{
					Table: warehouse.TableRef{
						Project: params.String("project_id"),
						Dataset: params.String("dataset_id"),
						Table:   params.String("table_id"),
					},
					PageToken: params.String("page_token"),
					PageSize:  int64(params.Int("page_size")),
				}
				var page *warehouse.Page
				if err := deps.Retry.Do(ctx, "page.read", func() error {
					var readErr error
					page, readErr = deps.Pages.ReadPage(ctx, req)
					return readErr
				}); err != nil {
					return err
				}

				batchSize := params.Int("mp_batch_size")
				if batchSize <= 0 {
					batchSize = 20
				}
				batch := make([]url.Values, 0, batchSize)
				shipped := 0
				ship := func() error {
					if len(batch) == 0 {
						return nil
					}
					if err := deps.Retry.Do(ctx, "sink.send", func() error {
						return deps.Sink.Send(ctx, batch)
					}); err != nil {
						base.LogError(ctx, fmt.Sprintf("sink rejected batch after retries, abandoning page: %v", err))
						return err
					}
					shipped += len(batch)
					batch = batch[:0]
					return nil
				}

				for _, row := range page.Rows {
					batch = append(batch, transformRow(page.Schema, row))
					if len(batch) >= batchSize {
						if err := ship(); err != nil {
							return nil
						}
					}
				}
				if err := ship(); err != nil {
					return nil
				}
				base.LogInfo(ctx, fmt.Sprintf("page shipped, %d record(s)", shipped))
				return nil
			}, nil
		},
	}
}

// analyticsOrchestratorDefinition walks the table's pages, enqueueing one
// processor per page. The fan-out cap bounds how many pages one invocation
// may hand out; when pages remain past the cap, exactly one orchestrator
// continuation carries the next cursor, keeping the chain strictly linear.
func analyticsOrchestratorDefinition(deps Deps) pipeline.Definition {
	spec := analyticsSourceSpec()
	spec = append(spec, pipeline.ParamSpec{
		Name: "max_enqueued_jobs", Kind: pipeline.KindNumber, Default: 10,
		Description: "fan-out cap: pages handed out per invocation",
	})

	return pipeline.Definition{
		Name: TypeAnalyticsOrchestrator,
		Spec: spec,
		Factory: func(base *pipeline.Base) (pipeline.WorkFunc, error) {
			return func(ctx context.Context, yield pipeline.YieldFunc) error {
				params := base.Params()
				table := warehouse.TableRef{
					Project: params.String("project_id"),
					Dataset: params.String("dataset_id"),
					Table:   params.String("table_id"),
				}
				fanOutCap := params.Int("max_enqueued_jobs")
				if fanOutCap <= 0 {
					fanOutCap = 1
				}

				token := params.String("page_token")
				for enqueued := 0; ; {
					procParams := params.Clone()
					delete(procParams, "max_enqueued_jobs")
					procParams["page_token"] = token
					if err := yield(base.Enqueue(TypeAnalyticsProcessor, procParams)); err != nil {
						return err
					}
					enqueued++

					req := warehouse.PageRequest{
						Table:     table,
						PageToken: token,
						PageSize:  int64(params.Int("page_size")),
					}
					var page *warehouse.Page
					if err := deps.Retry.Do(ctx, "page.read", func() error {
						var readErr error
						page, readErr = deps.Pages.ReadPage(ctx, req)
						return readErr
					}); err != nil {
						return err
					}
					if page.NextPageToken == "" {
						return nil
					}
					if enqueued >= fanOutCap {
						contParams := params.Clone()
						contParams["page_token"] = page.NextPageToken
						base.LogInfo(ctx, fmt.Sprintf("fan-out cap reached after %d page(s), continuing at next cursor", enqueued))
						return yield(base.Enqueue(TypeAnalyticsOrchestrator, contParams))
					}
					token = page.NextPageToken
				}
			}, nil
		},
	}
}

// transformRow maps one row into the sink's record shape. Field names come
// from the page schema; FLOAT cells are normalized so integral values render
// with a trailing ".0". Every record carries the protocol version field.
func transformRow(schema []warehouse.FieldSchema, row []string) url.Values {
	record := url.Values{}
	record.Set("v", "1")
	for i, field := range schema {
		if i >= len(row) {
			break
		}
		value := row[i]
		if value == "" {
			continue
		}
		if field.Type == "FLOAT" {
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				value = formatFloat(f)
			}
		}
		record.Set(field.Name, value)
	}
	return record
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

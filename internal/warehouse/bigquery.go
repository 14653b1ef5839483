package warehouse

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	bq "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"

	"github.com/chainline/chainline/internal/pipeline"
)

// BigQueryService implements JobService and PageReader over the BigQuery v2
// REST API.
type BigQueryService struct {
	svc *bq.Service

	mu      sync.Mutex
	schemas map[TableRef][]FieldSchema
}

var (
	_ JobService = &BigQueryService{}
	_ PageReader = &BigQueryService{}
)

func NewBigQueryService(svc *bq.Service) *BigQueryService {
	return &BigQueryService{
		svc:     svc,
		schemas: make(map[TableRef][]FieldSchema),
	}
}

func (s *BigQueryService) QueryJob(spec QuerySpec) Job {
	config := &bq.JobConfigurationQuery{
		Query:        spec.Query,
		UseLegacySql: &spec.Legacy,
	}
	if spec.Destination != nil {
		config.DestinationTable = tableReference(*spec.Destination)
		config.AllowLargeResults = true
		config.WriteDisposition = spec.WriteDisposition
	}
	return &bigqueryJob{
		svc:     s.svc,
		project: spec.Project,
		payload: &bq.Job{Configuration: &bq.JobConfiguration{Query: config}},
	}
}

func (s *BigQueryService) LoadJob(spec LoadSpec) Job {
	config := &bq.JobConfigurationLoad{
		SourceUris:       spec.SourceURIs,
		DestinationTable: tableReference(spec.Destination),
		SourceFormat:     spec.SourceFormat,
		SkipLeadingRows:  spec.SkipLeadingRows,
		WriteDisposition: spec.WriteDisposition,
		Autodetect:       spec.Autodetect,
	}
	return &bigqueryJob{
		svc:     s.svc,
		project: spec.Project,
		payload: &bq.Job{Configuration: &bq.JobConfiguration{Load: config}},
	}
}

func (s *BigQueryService) JobFromID(project, jobID string) Job {
	return &bigqueryJob{
		svc:     s.svc,
		project: project,
		id:      jobID,
	}
}

// ReadPage fetches one page of rows, stringifying cell values. The table
// schema comes from a separate tables.get call, cached per table since the
// schema cannot change mid-read.
func (s *BigQueryService) ReadPage(ctx context.Context, req PageRequest) (*Page, error) {
	schema, err := s.tableSchema(ctx, req.Table)
	if err != nil {
		return nil, err
	}

	call := s.svc.Tabledata.List(req.Table.Project, req.Table.Dataset, req.Table.Table).Context(ctx)
	if req.PageToken != "" {
		call = call.PageToken(req.PageToken)
	}
	if req.PageSize > 0 {
		call = call.MaxResults(req.PageSize)
	}
	list, err := call.Do()
	if err != nil {
		return nil, classify(errors.Wrapf(err, "read page of %s.%s", req.Table.Dataset, req.Table.Table))
	}

	rows := make([][]string, 0, len(list.Rows))
	for _, row := range list.Rows {
		cells := make([]string, 0, len(row.F))
		for _, cell := range row.F {
			cells = append(cells, cellString(cell.V))
		}
		rows = append(rows, cells)
	}
	return &Page{
		Schema:        schema,
		Rows:          rows,
		NextPageToken: list.PageToken,
	}, nil
}

func (s *BigQueryService) tableSchema(ctx context.Context, ref TableRef) ([]FieldSchema, error) {
	s.mu.Lock()
	cached, ok := s.schemas[ref]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	table, err := s.svc.Tables.Get(ref.Project, ref.Dataset, ref.Table).Context(ctx).Do()
	if err != nil {
		return nil, classify(errors.Wrapf(err, "get schema of %s.%s", ref.Dataset, ref.Table))
	}
	schema := make([]FieldSchema, 0, len(table.Schema.Fields))
	for _, field := range table.Schema.Fields {
		schema = append(schema, FieldSchema{Name: field.Name, Type: field.Type})
	}

	s.mu.Lock()
	s.schemas[ref] = schema
	s.mu.Unlock()
	return schema, nil
}

func cellString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func tableReference(ref TableRef) *bq.TableReference {
	return &bq.TableReference{
		ProjectId: ref.Project,
		DatasetId: ref.Dataset,
		TableId:   ref.Table,
	}
}

// bigqueryJob is one remote job handle. id is empty until the job has been
// submitted; Begin on a submitted handle is a no-op.
type bigqueryJob struct {
	svc     *bq.Service
	project string
	payload *bq.Job

	id    string
	state JobState
	err   error
}

var _ Job = &bigqueryJob{}

func (j *bigqueryJob) ID() string      { return j.id }
func (j *bigqueryJob) State() JobState { return j.state }
func (j *bigqueryJob) Err() error      { return j.err }

func (j *bigqueryJob) Begin(ctx context.Context) error {
	if j.id != "" {
		return nil
	}
	inserted, err := j.svc.Jobs.Insert(j.project, j.payload).Context(ctx).Do()
	if err != nil {
		return classify(errors.Wrap(err, "insert job"))
	}
	j.id = inserted.JobReference.JobId
	j.applyStatus(inserted.Status)
	return nil
}

func (j *bigqueryJob) Reload(ctx context.Context) error {
	if j.id == "" {
		return pipeline.Permanent(errors.New("job not started"))
	}
	got, err := j.svc.Jobs.Get(j.project, j.id).Context(ctx).Do()
	if err != nil {
		return classify(errors.Wrapf(err, "get job %s", j.id))
	}
	j.applyStatus(got.Status)
	return nil
}

func (j *bigqueryJob) applyStatus(status *bq.JobStatus) {
	if status == nil {
		j.state = Pending
		return
	}
	switch status.State {
	case "RUNNING":
		j.state = Running
	case "DONE":
		j.state = Done
	default:
		j.state = Pending
	}
	if status.ErrorResult != nil {
		j.err = fmt.Errorf("%s: %s", status.ErrorResult.Reason, status.ErrorResult.Message)
	}
}

// classify tags API failures for the retry policy. Client errors are not
// retryable; everything else is.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 {
		return pipeline.Permanent(err)
	}
	return pipeline.Transient(err)
}

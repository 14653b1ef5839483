// Package warehouse exposes the minimal async-job and paginated-read surface
// the workers need from the analytics warehouse. Jobs run remotely and
// outlive any single worker invocation, so handles are rebuildable from a
// project and job ID alone.
package warehouse

import "context"

// JobState is the lifecycle of a remote warehouse job.
type JobState int

const (
	Pending JobState = iota
	Running
	Done
)

func (s JobState) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Done:
		return "DONE"
	}
	return "UNKNOWN"
}

// Job is one remote warehouse job. Begin submits it; Reload refreshes State
// and Err from the remote side. Begin on an already-submitted handle is a
// no-op, so resumed waiters can call it unconditionally.
type Job interface {
	ID() string
	Begin(ctx context.Context) error
	Reload(ctx context.Context) error
	State() JobState
	Err() error
}

// TableRef addresses one table.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// FieldSchema describes one column of a read page.
type FieldSchema struct {
	Name string
	Type string
}

// Page is one page of table rows. Cell values arrive stringified; the schema
// carries the type needed to interpret them.
type Page struct {
	Schema        []FieldSchema
	Rows          [][]string
	NextPageToken string
}

// PageRequest addresses one page of a table read.
type PageRequest struct {
	Table     TableRef
	PageToken string
	PageSize  int64
}

// PageReader reads one page at a cursor. Implementations never advance the
// cursor themselves; the caller decides whether to follow NextPageToken.
type PageReader interface {
	ReadPage(ctx context.Context, req PageRequest) (*Page, error)
}

// QuerySpec describes a query job to run.
type QuerySpec struct {
	Project          string
	Query            string
	Legacy           bool
	Destination      *TableRef
	WriteDisposition string
}

// LoadSpec describes a load job from object storage into a table.
type LoadSpec struct {
	Project          string
	SourceURIs       []string
	Destination      TableRef
	SourceFormat     string
	SkipLeadingRows  int64
	WriteDisposition string
	Autodetect       bool
}

// JobService creates job handles. Handles come back unstarted; Begin submits
// them. JobFromID rebuilds the handle for a job a previous worker started.
type JobService interface {
	QueryJob(spec QuerySpec) Job
	LoadJob(spec LoadSpec) Job
	JobFromID(project, jobID string) Job
}

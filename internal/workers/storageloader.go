package workers

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/chainline/chainline/internal/objstore"
	"github.com/chainline/chainline/internal/pipeline"
	"github.com/chainline/chainline/internal/warehouse"
)

func storageLoaderDefinition(deps Deps) pipeline.Definition {
	spec := []pipeline.ParamSpec{
		{Name: "source_uris", Kind: pipeline.KindStringList, Required: true, Description: "gs:// locators; a single trailing glob segment is expanded"},
		{Name: "project_id", Kind: pipeline.KindString, Required: true, Description: "warehouse project"},
		{Name: "dataset_id", Kind: pipeline.KindString, Required: true, Description: "destination dataset"},
		{Name: "table_id", Kind: pipeline.KindString, Required: true, Description: "destination table"},
		{Name: "source_format", Kind: pipeline.KindString, Default: "CSV", Description: "source file format"},
		{Name: "skip_leading_rows", Kind: pipeline.KindNumber, Default: 0, Description: "header rows to skip"},
		{Name: "write_disposition", Kind: pipeline.KindString, Default: "WRITE_TRUNCATE", Description: "destination write disposition"},
		{Name: "autodetect", Kind: pipeline.KindBoolean, Default: false, Description: "infer the schema from the source files"},
	}
	spec = append(spec, followOnSpec()...)

	return pipeline.Definition{
		Name: TypeStorageLoader,
		Spec: spec,
		Factory: func(base *pipeline.Base) (pipeline.WorkFunc, error) {
			return func(ctx context.Context, yield pipeline.YieldFunc) error {
				params := base.Params()
				uris, err := ExpandSourceURIs(ctx, deps, params.StringList("source_uris"))
				if err != nil {
					return err
				}
				if len(uris) == 0 {
					base.LogWarn(ctx, "no source objects matched, nothing to load")
					return yieldFollowOn(base, yield)
				}
				base.LogInfo(ctx, fmt.Sprintf("loading %d source object(s)", len(uris)))

				loadSpec := warehouse.LoadSpec{
					Project:    params.String("project_id"),
					SourceURIs: uris,
					Destination: warehouse.TableRef{
						Project: params.String("project_id"),
						Dataset: params.String("dataset_id"),
						Table:   params.String("table_id"),
					},
					SourceFormat:     params.String("source_format"),
					SkipLeadingRows:  int64(params.Int("skip_leading_rows")),
					WriteDisposition: params.String("write_disposition"),
					Autodetect:       params.Bool("autodetect"),
				}
				job := deps.Jobs.LoadJob(loadSpec)
				done, err := deps.poller().beginAndWait(ctx, base, yield, deps.Retry, loadSpec.Project, []warehouse.Job{job})
				if err != nil || !done {
					return err
				}
				return yieldFollowOn(base, yield)
			}, nil
		},
	}
}

// ExpandSourceURIs resolves each locator to concrete object URIs. Literals
// pass through unchanged in input order. A locator whose last segment holds
// the only wildcard lists the preceding prefix and keeps entries whose final
// segment matches, in listing order. Listing goes through the retry policy
// since a transient storage failure should not fail the whole load.
func ExpandSourceURIs(ctx context.Context, deps Deps, locators []string) ([]string, error) {
	var out []string
	for _, locator := range locators {
		if !strings.Contains(locator, "*") {
			out = append(out, locator)
			continue
		}
		bucket, object, err := splitObjectURI(locator)
		if err != nil {
			return nil, err
		}
		prefix, pattern := path.Split(object)
		if strings.Contains(prefix, "*") {
			return nil, pipeline.NewConfigurationError("source_uris",
				fmt.Sprintf("wildcard allowed only in the last segment of %q", locator))
		}

		var entries []objstore.Entry
		if err := deps.Retry.Do(ctx, "storage.list", func() error {
			var listErr error
			entries, listErr = deps.Lister.List(ctx, bucket, prefix)
			return listErr
		}); err != nil {
			return nil, err
		}
		for _, entry := range entries {
			rest := strings.TrimPrefix(entry.Name, prefix)
			if matched, _ := path.Match(pattern, rest); matched {
				out = append(out, "gs://"+entry.Bucket+"/"+entry.Name)
			}
		}
	}
	return out, nil
}

func splitObjectURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimPrefix(uri, "gs://")
	if trimmed == uri {
		return "", "", pipeline.NewConfigurationError("source_uris", fmt.Sprintf("locator %q is not a gs:// URI", uri))
	}
	bucket, object, ok := strings.Cut(trimmed, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", pipeline.NewConfigurationError("source_uris", fmt.Sprintf("locator %q misses a bucket or object path", uri))
	}
	return bucket, object, nil
}

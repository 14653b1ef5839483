// Package objstore lists objects in cloud storage buckets for source
// expansion.
package objstore

import (
	"context"

	"github.com/pkg/errors"
	gcs "google.golang.org/api/storage/v1"

	"github.com/chainline/chainline/internal/pipeline"
)

// Entry is one listed object.
type Entry struct {
	Bucket string
	Name   string
}

// Lister lists objects under a bucket prefix, in the service's listing
// order.
type Lister interface {
	List(ctx context.Context, bucket, prefix string) ([]Entry, error)
}

// GCSLister implements Lister over the Cloud Storage JSON API.
type GCSLister struct {
	svc *gcs.Service
}

var _ Lister = &GCSLister{}

func NewGCSLister(svc *gcs.Service) *GCSLister {
	return &GCSLister{svc: svc}
}

func (l *GCSLister) List(ctx context.Context, bucket, prefix string) ([]Entry, error) {
	var entries []Entry
	pageToken := ""
	for {
		call := l.svc.Objects.List(bucket).Prefix(prefix).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		objects, err := call.Do()
		if err != nil {
			return nil, pipeline.Transient(errors.Wrapf(err, "list gs://%s/%s", bucket, prefix))
		}
		for _, obj := range objects.Items {
			entries = append(entries, Entry{Bucket: bucket, Name: obj.Name})
		}
		if objects.NextPageToken == "" {
			return entries, nil
		}
		pageToken = objects.NextPageToken
	}
}

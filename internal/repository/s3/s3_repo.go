package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"airmonitor/pkg/client/s3"

	"github.com/minio/minio-go/v7"
)

const logContentType = "text/csv"

type S3Repo struct {
	StorageS3 *s3.StorageS3
}

func NewS3Repo(storageS3 *s3.StorageS3) *S3Repo {
	return &S3Repo{
		StorageS3: storageS3,
	}
}

func (s *S3Repo) PutLog(ctx context.Context, key string, data []byte) error {
	if s.StorageS3 == nil || s.StorageS3.Client == nil {
		return fmt.Errorf("s3 client not initialized")
	}

	_, err := s.StorageS3.Client.PutObject(
		ctx,
		s.StorageS3.Bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType: logContentType,
		},
	)
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}

	return nil
}

// ListLogs returns every object key in the bucket, sorted.
func (s *S3Repo) ListLogs(ctx context.Context) ([]string, error) {
	if s.StorageS3 == nil || s.StorageS3.Client == nil {
		return nil, fmt.Errorf("s3 client not initialized")
	}

	var keys []string
	for obj := range s.StorageS3.Client.ListObjects(ctx, s.StorageS3.Bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)

	return keys, nil
}

func (s *S3Repo) GetLogReader(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.StorageS3.Client.GetObject(ctx, s.StorageS3.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3 get object: %w", err)
	}

	return obj, nil
}

// Package objectstore provides the pluggable object storage backends the
// S3 archive sink writes batches of certificate records to. Every object
// written through Storage is one gzip-compressed NDJSON archive batch, keyed
// under ArchiveKey's date-partitioned layout, not an arbitrary blob store.
package objectstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Storage is the minimal object-store contract the archive sink needs:
// write-once blobs addressed by key, with an existence check for
// idempotent writes. Set gzip-compresses data before handing it to the
// backend; Get transparently decompresses, so callers never see gzip
// framing.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ArchiveKey builds ctsentinel's archive object key: a date-partitioned path
// per log so a bucket listing can be walked day by day rather than scanning
// one flat prefix, ending in the fixed .ndjson.gz suffix every archive
// object carries.
func ArchiveKey(prefix, logName string, t time.Time) string {
	t = t.UTC()
	if logName == "" {
		logName = "unknown-log"
	}
	return fmt.Sprintf("%s/%s/%04d/%02d/%02d/%s-%s.ndjson.gz",
		prefix, logName, t.Year(), t.Month(), t.Day(),
		t.Format("150405.000"), randomSuffix())
}

func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "0000"
	}
	return hex.EncodeToString(b)
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}

// ------------------------------------------------------------

type S3Storage struct {
	client *s3.Client
	bucket string
}

func NewS3Storage(region, bucket, endpoint, accessKeyID, secretAccessKey string) S3Storage {
	s3Config := aws.Config{
		Credentials:  credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		BaseEndpoint: aws.String(endpoint),
		Region:       region,
	}

	client := s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return S3Storage{
		client: client,
		bucket: bucket,
	}
}

func (b *S3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	output, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer output.Body.Close()
	raw, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, err
	}
	return decompress(raw)
}

func (b *S3Storage) Set(ctx context.Context, key string, data []byte) error {
	compressed, err := compress(data)
	if err != nil {
		return fmt.Errorf("objectstore: compress: %w", err)
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(b.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(compressed),
		ContentEncoding: aws.String("gzip"),
		ContentType:     aws.String("application/x-ndjson"),
	})
	return err
}

func (b *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var responseError *awshttp.ResponseError
		if errors.As(err, &responseError) && responseError.ResponseError.HTTPStatusCode() == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ------------------------------------------------------------

// FsStorage is used by the sample/local configuration and by tests; it
// keeps the archive sink runnable without AWS credentials. Writes land in a
// temporary file first and are renamed into place, so a crash mid-write
// never leaves a truncated .ndjson.gz object for a downstream reader to
// trip over.
type FsStorage struct {
	root string
}

func NewFsStorage(rootDirectory string) FsStorage {
	return FsStorage{root: rootDirectory}
}

func (f *FsStorage) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(f.root, key))
	if err != nil {
		return nil, err
	}
	return decompress(raw)
}

func (f *FsStorage) Set(ctx context.Context, key string, data []byte) error {
	compressed, err := compress(data)
	if err != nil {
		return fmt.Errorf("objectstore: compress: %w", err)
	}

	filePath := filepath.Join(f.root, key)
	if err := f.writeAtomic(filePath, compressed); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(filePath), 0755); mkdirErr != nil {
		return fmt.Errorf("objectstore: create directories: %w", mkdirErr)
	}
	return f.writeAtomic(filePath, compressed)
}

func (f *FsStorage) writeAtomic(filePath string, data []byte) error {
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filePath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (f *FsStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(filepath.Join(f.root, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

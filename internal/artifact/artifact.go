// Package artifact stores finished exports in a blob bucket: a local
// directory, memory, S3 or GCS. Names ending in ".zst" are zstd-compressed.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob" // gs:// driver
	_ "gocloud.dev/blob/memblob" // mem:// driver
	_ "gocloud.dev/blob/s3blob"  // s3:// driver
	"gocloud.dev/gcerrors"
)

// CompressedSuffix marks artifacts stored zstd-compressed.
const CompressedSuffix = ".zst"

// ErrNotFound is returned when an artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Sink writes artifacts into one bucket.
type Sink struct {
	bucket *blob.Bucket
	url    string
}

// Open opens the bucket at dest. A dest without a scheme is a local
// directory, created on first write.
func Open(ctx context.Context, dest string) (*Sink, error) {
	var (
		bucket *blob.Bucket
		err    error
	)
	if strings.Contains(dest, "://") {
		bucket, err = blob.OpenBucket(ctx, dest)
	} else {
		bucket, err = fileblob.OpenBucket(dest, &fileblob.Options{CreateDir: true})
	}
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", dest, err)
	}
	return &Sink{bucket: bucket, url: dest}, nil
}

// URL returns the destination the sink was opened with.
func (s *Sink) URL() string {
	return s.url
}

// Write stores data under name, compressing it when name ends in ".zst".
func (s *Sink) Write(ctx context.Context, name, contentType string, data []byte) error {
	opts := &blob.WriterOptions{ContentType: contentType}
	if strings.HasSuffix(name, CompressedSuffix) {
		compressed, err := compress(data)
		if err != nil {
			return fmt.Errorf("compress %s: %w", name, err)
		}
		data = compressed
		opts.ContentType = "application/zstd"
	}

	w, err := s.bucket.NewWriter(ctx, name, opts)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", name, err)
	}
	return nil
}

// Read returns the content of name, decompressed when stored compressed,
// together with its content type.
func (s *Sink) Read(ctx context.Context, name string) ([]byte, string, error) {
	r, err := s.bucket.NewReader(ctx, name, nil)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", name, err)
	}
	contentType := r.ContentType()
	if strings.HasSuffix(name, CompressedSuffix) {
		if data, err = decompress(data); err != nil {
			return nil, "", fmt.Errorf("decompress %s: %w", name, err)
		}
	}
	return data, contentType, nil
}

// Take reads name and deletes it, for single-use downloads.
func (s *Sink) Take(ctx context.Context, name string) ([]byte, string, error) {
	data, contentType, err := s.Read(ctx, name)
	if err != nil {
		return nil, "", err
	}
	if err := s.bucket.Delete(ctx, name); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return nil, "", fmt.Errorf("delete %s: %w", name, err)
	}
	return data, contentType, nil
}

// Close releases the bucket.
func (s *Sink) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

// Write is a one-shot helper: open dest, store the artifact, close.
func Write(ctx context.Context, dest, name, contentType string, data []byte) error {
	sink, err := Open(ctx, dest)
	if err != nil {
		return err
	}
	defer sink.Close()
	return sink.Write(ctx, name, contentType, data)
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// Package storage keeps avatar images in a blob bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	"gocloud.dev/gcerrors"

	"github.com/josquinlarsen/tarpaulin/internal/apperror"
)

// BucketStorage stores avatars in a bucket. Blob names are flat: any name
// containing a path separator or starting with a dot is rejected.
type BucketStorage struct {
	bucket *blob.Bucket
}

// New wraps an already opened bucket. The storage owns it from then on.
func New(bucket *blob.Bucket) *BucketStorage {
	return &BucketStorage{bucket: bucket}
}

// OpenBucket opens a bucket URL such as file:///data/avatars or
// gs://my-bucket.
func OpenBucket(ctx context.Context, url string) (*BucketStorage, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("storage: opening bucket %s: %w", url, err)
	}
	return New(b), nil
}

// OpenDir opens a file-backed bucket rooted at dir, creating dir if needed.
func OpenDir(dir string) (*BucketStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
	}
	b, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: opening %s: %w", dir, err)
	}
	return New(b), nil
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return apperror.ValidationFailed("file", fmt.Sprintf("invalid file name %q", name))
	}
	return nil
}

// Put writes r to name, replacing any existing blob. The content type is
// sniffed from the first bytes and recorded with the blob. A failed copy
// aborts the write so readers never see a partial image.
func (s *BucketStorage) Put(ctx context.Context, name string, r io.Reader) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("storage: writing %s: %w", name, err)
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, name, nil)
	if err != nil {
		return fmt.Errorf("storage: writing %s: %w", name, err)
	}
	if _, err := io.Copy(w, readerWithContext(ctx, r)); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("storage: writing %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: writing %s: %w", name, err)
	}
	return nil
}

// Open returns the blob and the content type recorded when it was written.
// It returns apperror.ErrNotFound if name does not exist.
func (s *BucketStorage) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if err := checkName(name); err != nil {
		return nil, "", err
	}
	r, err := s.bucket.NewReader(ctx, name, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, "", apperror.NotFound("avatar", name)
		}
		return nil, "", fmt.Errorf("storage: opening %s: %w", name, err)
	}
	return r, r.ContentType(), nil
}

// Delete returns apperror.ErrNotFound if name does not exist.
func (s *BucketStorage) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := s.bucket.Delete(ctx, name); err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return apperror.NotFound("avatar", name)
		}
		return fmt.Errorf("storage: deleting %s: %w", name, err)
	}
	return nil
}

// Exists reports whether name is present.
func (s *BucketStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	return s.bucket.Exists(ctx, name)
}

func (s *BucketStorage) Close() error {
	if err := s.bucket.Close(); err != nil {
		return fmt.Errorf("storage: closing bucket: %w", err)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// readerWithContext stops a copy once ctx is done.
func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}

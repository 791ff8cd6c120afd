// Package objectstore persists the service's blobs in a NATS JetStream
// object store: input text under caller-chosen keys and rendered WAV audio
// under generated keys, one bucket for both.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const bucketDescription = "Synthesis input text and rendered audio."

// Object content types, chosen by key suffix.
const (
	headerContentType = "Content-Type"
	contentTypeWAV    = "audio/wav"
	contentTypeText   = "text/plain; charset=utf-8"
	wavKeySuffix      = ".wav"
)

// Store is the NATS-backed implementation of core.ObjectStore.
type Store struct {
	bucket string
	store  nats.ObjectStore
}

// New binds to the named bucket, creating it on first use.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*Store, error) {
	store, err := ensureBucket(jetstreamContext, bucketName)
	if err != nil {
		return nil, err
	}

	return &Store{
		bucket: bucketName,
		store:  store,
	}, nil
}

// ensureBucket creates the bucket, falling back to a bind when another
// process created it first.
func ensureBucket(
	jetstreamContext nats.JetStreamContext,
	bucketName string,
) (nats.ObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: bucketDescription,
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err == nil {
		return store, nil
	}

	if !errors.Is(err, jetstream.ErrBucketExists) {
		return nil, fmt.Errorf("failed to create bucket %q: %w", bucketName, err)
	}

	store, err = jetstreamContext.ObjectStore(bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to bind to bucket %q: %w", bucketName, err)
	}

	return store, nil
}

// Download reads the blob stored under key. The context is checked before
// the read starts; the underlying client call itself is not cancelable.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	err := ctx.Err()
	if err != nil {
		return nil, fmt.Errorf("download of %q aborted: %w", key, err)
	}

	obj, err := s.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf(
			"object %q not readable in bucket %q: %w", key, s.bucket, err,
		)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object %q: %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object %q: %w", key, closeErr)
	}

	return data, nil
}

// Upload stores data under key, tagging the object with the content type
// implied by the key suffix.
func (s *Store) Upload(ctx context.Context, key string, data []byte) error {
	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("upload of %q aborted: %w", key, err)
	}

	meta := &nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nats.Header{headerContentType: []string{contentTypeForKey(key)}},
		Metadata:    nil,
		Opts:        nil,
	}

	_, err = s.store.Put(meta, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf(
			"failed to store object %q in bucket %q: %w", key, s.bucket, err,
		)
	}

	return nil
}

func contentTypeForKey(key string) string {
	if strings.HasSuffix(key, wavKeySuffix) {
		return contentTypeWAV
	}

	return contentTypeText
}

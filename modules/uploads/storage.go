package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrObjectNotFound is returned when no object has the requested name.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore stores uploaded images.
type ObjectStore interface {
	Put(ctx context.Context, name string, data []byte, meta ObjectMeta) (*ObjectInfo, error)
	Get(ctx context.Context, name string) ([]byte, *ObjectInfo, error)
}

// ObjectMeta is stored next to an object.
type ObjectMeta struct {
	ContentType  string
	OriginalName string
	UploadedBy   string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Name        string
	Size        uint64
	ContentType string
	ModTime     time.Time
}

func contentTypeOf(headers nats.Header) string {
	if headers != nil {
		if ct := headers.Get("Content-Type"); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

// JetStreamObjectStore implements ObjectStore on a NATS JetStream object store bucket.
type JetStreamObjectStore struct {
	conn       *nats.Conn
	js         jetstream.JetStream
	store      jetstream.ObjectStore
	bucketName string
}

// NewJetStreamObjectStore connects to NATS. Call Init before use.
func NewJetStreamObjectStore(natsURL, bucketName string) (*JetStreamObjectStore, error) {
	conn, err := nats.Connect(natsURL, nats.Name("whatsup-uploads"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &JetStreamObjectStore{
		conn:       conn,
		js:         js,
		bucketName: bucketName,
	}, nil
}

// Init opens the bucket, creating it if needed.
func (s *JetStreamObjectStore) Init(ctx context.Context, maxBucketBytes int64) error {
	store, err := s.js.ObjectStore(ctx, s.bucketName)
	if err == nil {
		s.store = store
		return nil
	}

	store, err = s.js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      s.bucketName,
		Description: "Chat image uploads",
		MaxBytes:    maxBucketBytes,
		Compression: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create object store bucket: %w", err)
	}

	s.store = store
	return nil
}

// Put stores data under name.
func (s *JetStreamObjectStore) Put(ctx context.Context, name string, data []byte, meta ObjectMeta) (*ObjectInfo, error) {
	info, err := s.store.Put(ctx, jetstream.ObjectMeta{
		Name:        name,
		Description: meta.OriginalName,
		Headers: nats.Header{
			"Content-Type":  []string{meta.ContentType},
			"Original-Name": []string{meta.OriginalName},
			"Uploaded-By":   []string{meta.UploadedBy},
		},
	}, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to store object: %w", err)
	}

	return &ObjectInfo{
		Name:        info.Name,
		Size:        info.Size,
		ContentType: meta.ContentType,
		ModTime:     info.ModTime,
	}, nil
}

// Get reads the object stored under name.
func (s *JetStreamObjectStore) Get(ctx context.Context, name string) ([]byte, *ObjectInfo, error) {
	result, err := s.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer result.Close()

	data, err := io.ReadAll(result)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read object data: %w", err)
	}

	info, err := result.Info()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get object info: %w", err)
	}

	return data, &ObjectInfo{
		Name:        info.Name,
		Size:        info.Size,
		ContentType: contentTypeOf(info.Headers),
		ModTime:     info.ModTime,
	}, nil
}

// IsConnected reports whether the NATS connection is up.
func (s *JetStreamObjectStore) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// Close closes the NATS connection.
func (s *JetStreamObjectStore) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

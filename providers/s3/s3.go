// Package s3bucket stores savex dumps as S3 objects.
//
// Values are dumped in memory first so the object holds the same bytes a
// seekable sink would, offsets included, then streamed to PutObject through
// a pipe. A stream key seals whole objects with chunked AES-256-GCM on top
// of any Encrypted fields.
package s3bucket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hengadev/savex"
	"github.com/hengadev/savex/internal/crypto"
)

const contentType = "application/vnd.savex"

// ObjectAPI is the subset of the S3 client used by Store.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Config struct {
	Bucket string
	Prefix string

	// Region is the AWS region. If empty, AWS_REGION or the AWS config file
	// is used.
	Region string

	// AWSConfig is an optional pre-configured AWS config. If provided,
	// Region is ignored.
	AWSConfig *aws.Config

	// StreamKey, when set, seals every object with SealStream.
	StreamKey []byte

	Logger zerolog.Logger
}

// Store reads and writes dumps under one bucket and key prefix.
type Store struct {
	client ObjectAPI
	bucket string
	prefix string
	aead   *crypto.AEAD
	logger zerolog.Logger
}

// New builds an S3 client from cfg and wraps it in a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var awsConfig aws.Config
	var err error

	if cfg.AWSConfig != nil {
		awsConfig = *cfg.AWSConfig
	} else {
		opts := []func(*config.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Region))
		}
		awsConfig, err = config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load AWS config: %w", savex.ErrInvalidConfiguration, err)
		}
	}

	return NewWithClient(s3.NewFromConfig(awsConfig), cfg)
}

// NewWithClient wraps an existing client. Region and AWSConfig are ignored.
func NewWithClient(client ObjectAPI, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: s3 client cannot be nil", savex.ErrInvalidConfiguration)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", savex.ErrInvalidConfiguration)
	}

	s := &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: cfg.Logger.With().Str("bucket", cfg.Bucket).Logger(),
	}
	if cfg.StreamKey != nil {
		aead, err := crypto.NewAEAD(cfg.StreamKey)
		if err != nil {
			return nil, savex.NewConfigurationError("stream key", err)
		}
		s.aead = aead
	}
	return s, nil
}

// ObjectKey joins the prefix and name. An empty name gets a random UUID.
func (s *Store) ObjectKey(name string) string {
	if name == "" {
		name = uuid.NewString() + ".savex"
	}
	return s.prefix + strings.TrimPrefix(name, "/")
}

// Upload streams r to the object for name and returns its key.
func (s *Store) Upload(ctx context.Context, name string, r io.Reader) (key string, err error) {
	key = s.ObjectKey(name)
	w := newObjectWriter(ctx, s.client, s.bucket, key, s.logger)
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()

	if s.aead != nil {
		if err := s.aead.SealStream(w, r); err != nil {
			w.abort(err)
			return key, fmt.Errorf("failed to seal object %s: %w", key, err)
		}
		return key, nil
	}
	if _, err := io.Copy(w, r); err != nil {
		w.abort(err)
		return key, fmt.Errorf("failed to stream object %s: %w", key, err)
	}
	return key, nil
}

// Put dumps v and uploads it. opts are passed to savex.Dump.
func (s *Store) Put(ctx context.Context, name string, v any, opts ...savex.Option) (string, error) {
	data, err := savex.Dump(v, opts...)
	if err != nil {
		return "", err
	}
	return s.Upload(ctx, name, bytes.NewReader(data))
}

// Download returns the object content, opened with the stream key when set.
func (s *Store) Download(ctx context.Context, name string) ([]byte, error) {
	key := s.ObjectKey(name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	if s.aead == nil {
		data, err := io.ReadAll(out.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, key, err)
		}
		return data, nil
	}

	var plain bytes.Buffer
	if err := s.aead.OpenStream(&plain, out.Body); err != nil {
		return nil, fmt.Errorf("%w: failed to open s3://%s/%s: %w", savex.ErrDecryptionFailed, s.bucket, key, err)
	}
	return plain.Bytes(), nil
}

// Delete removes the object for name.
func (s *Store) Delete(ctx context.Context, name string) error {
	key := s.ObjectKey(name)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete s3://%s/%s: %w", s.bucket, key, err)
	}
	s.logger.Info().Str("key", key).Msg("deleted object")
	return nil
}

// Get downloads and decodes a single value.
func Get[T any](ctx context.Context, s *Store, name string, opts ...savex.Option) (*T, error) {
	data, err := s.Download(ctx, name)
	if err != nil {
		return nil, err
	}
	return savex.Undump[T](data, opts...)
}

// GetArray downloads and decodes an array dump.
func GetArray[T any](ctx context.Context, s *Store, name string, opts ...savex.Option) ([]T, error) {
	data, err := s.Download(ctx, name)
	if err != nil {
		return nil, err
	}
	return savex.UndumpArray[T](data, opts...)
}

// objectWriter feeds a PutObject call running in its own goroutine. Close
// waits for the upload and reports its error.
type objectWriter struct {
	writer *io.PipeWriter
	done   chan error
}

func newObjectWriter(ctx context.Context, client ObjectAPI, bucket, key string, logger zerolog.Logger) *objectWriter {
	reader, writer := io.Pipe()
	w := &objectWriter{writer: writer, done: make(chan error, 1)}

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic during upload: %v", r)
			}
			// unblock the writer side on failure
			reader.CloseWithError(err)
			w.done <- err
		}()

		_, err = client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        reader,
			ContentType: aws.String(contentType),
		})
		if err != nil {
			logger.Error().Err(err).Str("key", key).Msg("upload failed")
			err = fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
			return
		}
		logger.Info().Str("key", key).Msg("uploaded object")
	}()

	return w
}

func (w *objectWriter) Write(p []byte) (int, error) {
	return w.writer.Write(p)
}

// abort makes the pending upload fail instead of storing a partial object.
func (w *objectWriter) abort(err error) {
	w.writer.CloseWithError(err)
}

func (w *objectWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		return err
	}
	return <-w.done
}

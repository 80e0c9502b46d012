package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/filex"
)

// S3Config holds the settings for an S3-compatible backend such as MinIO.
type S3Config struct {
	User     string
	Password string
	Bucket   string
	Region   string
	Endpoint string
	// Prefix is prepended to every object key, e.g. "vault/".
	Prefix string
	// SpoolDir holds the temporary copy made while uploading. Empty means os.TempDir.
	SpoolDir string
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// seams for tests
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Store keeps blobs as objects in one bucket. S3 has no directories, so
// Allocate only computes the key prefixes.
type S3Store struct {
	client s3API
	cfg    S3Config
}

// NewS3Store builds a client with static credentials and path-style
// addressing so MinIO endpoints work.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.User, cfg.Password, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: aws config: %v", common.ErrStorage, err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})
	return newS3Store(client, cfg), nil
}

func newS3Store(client s3API, cfg S3Config) *S3Store {
	return &S3Store{client: client, cfg: cfg}
}

func (s *S3Store) objectKey(key string) string {
	return s.cfg.Prefix + strings.TrimPrefix(key, "/")
}

func (s *S3Store) Allocate(ctx context.Context, ownerID int64) (Dir, error) {
	return Dir{OwnerID: ownerID, Originals: ownerDir(ownerID), Thumbnails: ThumbnailsDir}, nil
}

// Write spools r to a temp file first: PutObject needs a seekable body of
// known length to sign the request.
func (s *S3Store) Write(ctx context.Context, key string, r io.Reader) (int64, error) {
	spool, err := os.CreateTemp(s.cfg.SpoolDir, "s3-spool-*")
	if err != nil {
		return 0, fmt.Errorf("%w: spool: %v", common.ErrStorage, err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	n, err := io.Copy(spool, filex.ContextReader(ctx, r))
	if err != nil {
		return 0, fmt.Errorf("%w: spool %s: %w", common.ErrStorage, key, err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: spool %s: %v", common.ErrStorage, key, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          spool,
		ContentLength: aws.Int64(n),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: put %s: %v", common.ErrStorage, key, err)
	}
	return n, nil
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, 0, mapS3Error(key, err)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

func (s *S3Store) Stat(ctx context.Context, key string) (Object, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return Object{}, mapS3Error(key, err)
	}
	return Object{Key: key, Size: aws.ToInt64(out.ContentLength), ModTime: aws.ToTime(out.LastModified)}, nil
}

// Remove deletes the object. S3 deletes are idempotent already.
func (s *S3Store) Remove(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if mapped := mapS3Error(key, err); errors.Is(mapped, common.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: delete %s: %v", common.ErrStorage, key, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context) ([]Object, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(s.cfg.Bucket)}
	if s.cfg.Prefix != "" {
		in.Prefix = aws.String(s.cfg.Prefix)
	}

	var out []Object
	p := s3.NewListObjectsV2Paginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list: %v", common.ErrStorage, err)
		}
		for _, obj := range page.Contents {
			out = append(out, Object{
				Key:     strings.TrimPrefix(aws.ToString(obj.Key), s.cfg.Prefix),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

func mapS3Error(key string, err error) error {
	var (
		noKey    *types.NoSuchKey
		notFound *types.NotFound
	)
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("blob %s: %w", key, common.ErrNotFound)
	}
	return fmt.Errorf("%w: %s: %v", common.ErrStorage, key, err)
}

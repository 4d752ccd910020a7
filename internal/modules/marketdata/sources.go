package marketdata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// SourceFile is one importable CSV file with a fingerprint that changes when its content does
type SourceFile struct {
	Key         string
	Fingerprint string
}

// Source lists and opens price CSV files
type Source interface {
	Name() string
	List(ctx context.Context) ([]SourceFile, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

func isCSV(name string) bool {
	return strings.EqualFold(path.Ext(name), ".csv")
}

// DirSource reads *.csv files from a local directory (non-recursive)
type DirSource struct {
	dir string
}

// NewDirSource creates a local directory source
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Name returns the source name
func (s *DirSource) Name() string {
	return "dir:" + s.dir
}

// List returns the CSV files in the directory, fingerprinted by size and modification time
func (s *DirSource) List(ctx context.Context) ([]SourceFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read import directory %s: %w", s.dir, err)
	}

	files := make([]SourceFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isCSV(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", e.Name(), err)
		}
		files = append(files, SourceFile{
			Key:         e.Name(),
			Fingerprint: fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}

// Open opens a file in the directory
func (s *DirSource) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(key)))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, nil
}

// S3Config configures an S3 (or S3-compatible) import source
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Source reads CSV objects under a bucket prefix
type S3Source struct {
	client     *s3.Client
	downloader *manager.Downloader
	bucket     string
	prefix     string
	log        zerolog.Logger
}

// NewS3Source creates an S3 source. Static credentials are used when provided,
// otherwise the default AWS credential chain applies.
func NewS3Source(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Source{
		client:     client,
		downloader: manager.NewDownloader(client),
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		log:        log.With().Str("component", "s3_source").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

// Name returns the source name
func (s *S3Source) Name() string {
	return "s3://" + s.bucket + "/" + s.prefix
}

// List returns the CSV objects under the prefix, fingerprinted by ETag
func (s *S3Source) List(ctx context.Context) ([]SourceFile, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var files []SourceFile
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !isCSV(key) {
				continue
			}
			files = append(files, SourceFile{
				Key:         key,
				Fingerprint: fmt.Sprintf("%s-%d", strings.Trim(aws.ToString(obj.ETag), `"`), aws.ToInt64(obj.Size)),
			})
		}
	}
	s.log.Debug().Int("objects", len(files)).Msg("Listed price files")
	return files, nil
}

// Open downloads an object into memory
func (s *S3Source) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, fmt.Errorf("failed to download s3://%s/%s: %w", s.bucket, key, err)
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

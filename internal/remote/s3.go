package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nycdata/tripsync/internal/dataset"
	"github.com/nycdata/tripsync/internal/probe"
	"github.com/nycdata/tripsync/internal/utils"
)

const defaultS3Concurrency = 5

type S3Config struct {
	Bucket      string
	Prefix      string
	Region      string
	Endpoint    string // non-AWS/test endpoints; enables path style
	AccessKey   string
	SecretKey   string
	ChunkSize   int64
	Concurrency int
	Timeout     time.Duration
}

// S3Source discovers fragments with a prefix listing over the dataset bucket
// and transfers them with the SDK's concurrent download manager. The listing
// already carries size/mtime/ETag, so fragments never need an HTTP probe.
type S3Source struct {
	client     *s3.Client
	downloader *manager.Downloader
	cfg        S3Config
	log        *slog.Logger

	mu    sync.RWMutex
	infos map[string]*probe.RemoteFileInfo // object key -> listing metadata
}

func NewS3Source(ctx context.Context, cfg S3Config, log *slog.Logger) (*S3Source, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultS3Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 2 * cfg.Concurrency,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: cfg.Timeout,
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("remote: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = cfg.ChunkSize
		d.Concurrency = cfg.Concurrency
	})

	return &S3Source{
		client:     client,
		downloader: downloader,
		cfg:        cfg,
		log:        log,
		infos:      make(map[string]*probe.RemoteFileInfo),
	}, nil
}

func (s *S3Source) Backend() dataset.Backend { return dataset.BackendS3 }

// Discover walks the hive-style partition listing under the configured
// prefix. Keys that do not parse into the filename grammar are skipped with
// a warning; the run continues with the remaining fragments.
func (s *S3Source) Discover(ctx context.Context, _ dataset.Criteria) ([]dataset.Fragment, error) {
	var fragments []dataset.Fragment

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(s.cfg.Prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &DiscoveryError{Backend: dataset.BackendS3, Err: err}
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue // partition directory placeholder
			}

			frag, err := dataset.NewFragment(key, dataset.BackendS3)
			if err != nil {
				s.log.Warn("skipping object with unparseable name", "key", key, "error", err)
				continue
			}

			s.mu.Lock()
			s.infos[key] = &probe.RemoteFileInfo{
				Size:        aws.ToInt64(obj.Size),
				SizeKnown:   obj.Size != nil,
				ModifiedAt:  aws.ToTime(obj.LastModified),
				ETag:        strings.ReplaceAll(aws.ToString(obj.ETag), "\"", ""),
				ResolvedURL: s.objectURL(key),
			}
			s.mu.Unlock()

			fragments = append(fragments, frag)
		}
	}

	return fragments, nil
}

// Info serves the metadata captured during Discover, falling back to a
// HeadObject call for fragments that were never listed.
func (s *S3Source) Info(ctx context.Context, f dataset.Fragment) (*probe.RemoteFileInfo, error) {
	s.mu.RLock()
	info, ok := s.infos[f.Path]
	s.mu.RUnlock()
	if ok {
		return info, nil
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(f.Path),
	})
	if err != nil {
		return nil, fmt.Errorf("remote: head object %q: %w", f.Path, err)
	}

	return &probe.RemoteFileInfo{
		Size:        aws.ToInt64(out.ContentLength),
		SizeKnown:   out.ContentLength != nil,
		MimeType:    aws.ToString(out.ContentType),
		ModifiedAt:  aws.ToTime(out.LastModified),
		ETag:        strings.ReplaceAll(aws.ToString(out.ETag), "\"", ""),
		ResolvedURL: s.objectURL(f.Path),
	}, nil
}

func (s *S3Source) Download(ctx context.Context, f dataset.Fragment, dest string) error {
	if err := utils.EnsureParent(dest); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tripsync-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	_, err = s.downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(f.Path),
	})
	if err != nil {
		tmp.Close()
		return fmt.Errorf("remote: get object %q: %w", f.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dest)
}

func (s *S3Source) OpenRange(ctx context.Context, f dataset.Fragment) (io.ReaderAt, int64, error) {
	info, err := s.Info(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if !info.SizeKnown {
		return nil, 0, fmt.Errorf("remote: size unknown for %q", f.Path)
	}
	return &s3ReaderAt{ctx: ctx, client: s.client, bucket: s.cfg.Bucket, key: f.Path}, info.Size, nil
}

func (s *S3Source) objectURL(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, key)
}

// s3ReaderAt serves ReadAt calls with ranged GetObject requests.
type s3ReaderAt struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
}

func (r *s3ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	rng := fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1)
	out, err := r.client.GetObject(r.ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
		Range:  aws.String(rng),
	})
	if err != nil {
		return 0, fmt.Errorf("remote: ranged get %q %s: %w", r.key, rng, err)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

var _ Source = (*S3Source)(nil)

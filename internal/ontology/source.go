package ontology

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"scouter/internal/concept"
	"scouter/internal/logger"
)

// Source：本体文档的来源
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// FileSource：本地文件
type FileSource struct {
	Path string
}

func (f FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(f.Path)
}

func (f FileSource) String() string { return "file:" + f.Path }

// ObjectSource：S3 兼容对象存储中的单个对象
type ObjectSource struct {
	client *minio.Client
	bucket string
	key    string
}

// ObjectConfig：对象存储连接参数
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Key       string
	UseSSL    bool
}

func NewObjectSource(cfg ObjectConfig) (*ObjectSource, error) {
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &ObjectSource{client: c, bucket: cfg.Bucket, key: cfg.Key}, nil
}

// Open：先 Stat 确认对象存在，GetObject 的错误否则要到首次读取才暴露
func (o *ObjectSource) Open(ctx context.Context) (io.ReadCloser, error) {
	obj, err := o.client.GetObject(ctx, o.bucket, o.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return obj, nil
}

func (o *ObjectSource) String() string { return "s3:" + o.bucket + "/" + o.key }

// Load：读取并构建权重表；失败返回 concept.ErrOntology，调用方应终止启动
func Load(ctx context.Context, src Source) (*concept.Table, error) {
	t0 := time.Now()
	rc, err := src.Open(ctx)
	if err != nil {
		logger.L().Error("ontology_open_error", "source", src.String(), "err", err)
		return nil, fmt.Errorf("%w: open %s: %v", concept.ErrOntology, src, err)
	}
	defer rc.Close()
	tbl, err := Parse(rc)
	if err != nil {
		logger.L().Error("ontology_parse_error", "source", src.String(), "err", err)
		return nil, err
	}
	logger.L().Info("ontology_loaded", "source", src.String(), "terms", tbl.Len(), "duration_ms", time.Since(t0).Milliseconds())
	return tbl, nil
}

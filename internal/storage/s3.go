package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config はS3（またはMinIO等のS3互換ストレージ）の接続設定。
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // 空の場合はAWSの既定エンドポイント
	AccessKey string
	SecretKey string
	PublicURL string // 空の場合はアプリケーション経由で配信する
}

// s3API はS3Storeが使用するS3クライアントの操作。
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store はS3バケットに画像を保存する。
// オブジェクトキーは {category}/{name}。
type S3Store struct {
	client    s3API
	bucket    string
	publicURL string
}

// NewS3Store はS3クライアントを構築してS3Storeを生成する。
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg.Bucket, cfg.PublicURL), nil
}

func newS3Store(client s3API, bucket, publicURL string) *S3Store {
	return &S3Store{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Save はrの内容をオブジェクトとしてアップロードする。
func (s *S3Store) Save(ctx context.Context, category, originalName string, r io.Reader) (string, error) {
	name, err := NewFileName(originalName)
	if err != nil {
		return "", err
	}
	if err := validName(category, name); err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(category + "/" + name),
		Body:        r,
		ContentType: aws.String(ContentType(name)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	return name, nil
}

// Open はオブジェクトを取得する。
func (s *S3Store) Open(ctx context.Context, category, name string) (io.ReadCloser, error) {
	if err := validName(category, name); err != nil {
		return nil, ErrNotFound
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(category + "/" + name),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, nil
}

// URL は公開URLが設定されていればオブジェクトの直接URLを、
// そうでなければアプリケーション経由の配信パスを返す。
func (s *S3Store) URL(category, name string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + category + "/" + name
	}
	return "/" + category + "/" + name
}

var _ Store = (*S3Store)(nil)

// Package storage es el handle del bucket de objetos de la app (S3 compatible:
// AWS, MinIO, GCS interoperable) ligado a storageBucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/dropDatabas3/hellodoc/internal/logger"
	"go.uber.org/zap"
)

const (
	DefaultRegion     = "us-east-1"
	DefaultPresignTTL = 15 * time.Minute
)

// Config del bucket.
type Config struct {
	Bucket    string
	Endpoint  string // vacío = AWS; con endpoint se usa path-style (MinIO)
	Region    string
	AccessKey string // vacío = cadena de credenciales por defecto
	SecretKey string
	// PresignTTL por defecto de las URLs firmadas.
	PresignTTL time.Duration
	Logger     *zap.Logger
}

// Bucket envuelve el cliente S3 y su presign client.
type Bucket struct {
	name    string
	client  *s3.Client
	presign *s3.PresignClient
	ttl     time.Duration
	log     *zap.Logger
}

// Open arma el cliente. No hace llamadas de red.
func Open(ctx context.Context, cfg Config) (*Bucket, error) {
	const op = "storage.Open"
	if cfg.Bucket == "" {
		return nil, errs.Configuration(op, "storageBucket")
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = DefaultPresignTTL
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errs.E(errs.KindConfiguration, op, cfg.Bucket, err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return &Bucket{
		name:    cfg.Bucket,
		client:  client,
		presign: s3.NewPresignClient(client),
		ttl:     cfg.PresignTTL,
		log:     logger.Or(cfg.Logger, "storage"),
	}, nil
}

func (b *Bucket) Name() string { return b.name }

func (b *Bucket) target(key string) string { return b.name + "/" + key }

func validKey(key string) bool {
	return key != "" && !strings.HasPrefix(key, "/") && len(key) <= 1024
}

// Put sube un objeto. contentType vacío = application/octet-stream.
func (b *Bucket) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	const op = "storage.Put"
	if !validKey(key) {
		return errs.E(errs.KindValidation, op, b.target(key), nil).WithMessage("invalid object key")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	// el SDK necesita un body con Seek para firmar
	data, err := io.ReadAll(body)
	if err != nil {
		return errs.E(errs.KindWrite, op, b.target(key), err)
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.name),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		b.log.Warn("put object failed", logger.Op(op), zap.String("key", key), logger.Err(err))
		return errs.E(errs.KindWrite, op, b.target(key), err)
	}
	return nil
}

// Get descarga un objeto completo. Objeto inexistente => KindNotFound.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "storage.Get"
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, errs.E(errs.KindNotFound, op, b.target(key), err)
		}
		return nil, errs.E(errs.KindRead, op, b.target(key), err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errs.E(errs.KindRead, op, b.target(key), err)
	}
	return data, nil
}

// Delete borra un objeto. Borrar algo inexistente no es error (semántica S3).
func (b *Bucket) Delete(ctx context.Context, key string) error {
	const op = "storage.Delete"
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return errs.E(errs.KindWrite, op, b.target(key), err)
	}
	return nil
}

// PresignGet devuelve una URL GET firmada. ttl <= 0 usa el default del bucket.
func (b *Bucket) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	const op = "storage.PresignGet"
	if ttl <= 0 {
		ttl = b.ttl
	}
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", errs.E(errs.KindRead, op, b.target(key), err)
	}
	return req.URL, nil
}

// PresignPut devuelve una URL PUT firmada para subir directo al bucket.
func (b *Bucket) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	const op = "storage.PresignPut"
	if !validKey(key) {
		return "", errs.E(errs.KindValidation, op, b.target(key), nil).WithMessage("invalid object key")
	}
	if ttl <= 0 {
		ttl = b.ttl
	}
	req, err := b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", errs.E(errs.KindWrite, op, b.target(key), err)
	}
	return req.URL, nil
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"houseprice/errs"
)

const defaultRegion = "us-east-1"

// S3Store talks to AWS S3 or an S3-compatible endpoint. Credentials come
// from the default AWS chain (environment, shared files, instance role).
type S3Store struct {
	client *s3.Client
	region string
}

func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.E(errs.Authentication, "open s3 store", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = defaultRegion
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return &S3Store{client: client, region: awsCfg.Region}, nil
}

// Region is the region requests are signed for.
func (s *S3Store) Region() string { return s.region }

func (s *S3Store) Upload(ctx context.Context, bucket, key string, data []byte) error {
	const op = "upload"
	if err := validate(op, bucket, key); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return classify(op, err)
	}
	return nil
}

func (s *S3Store) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	const op = "download"
	if err := validate(op, bucket, key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(op, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errs.E(errs.Transfer, op, err)
	}
	return data, nil
}

func (s *S3Store) Close() error { return nil }

// classify maps an SDK error onto the store's error kinds.
func classify(op string, err error) error {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return errs.E(errs.NotFound, op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return errs.E(errs.NotFound, op, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "AccessDenied",
			"ExpiredToken", "InvalidToken", "TokenRefreshRequired":
			return errs.E(errs.Authentication, op, err)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errs.E(errs.Authentication, op, err)
		case http.StatusNotFound:
			return errs.E(errs.NotFound, op, err)
		}
	}

	// Credential resolution failures are not typed by the SDK.
	if strings.Contains(err.Error(), "retrieve credentials") {
		return errs.E(errs.Authentication, op, err)
	}
	return errs.E(errs.Transfer, op, err)
}

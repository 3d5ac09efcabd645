package backends

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/jonwraymond/storageops/config"
	"github.com/jonwraymond/storageops/health"
	"github.com/jonwraymond/storageops/resilience"
	"github.com/jonwraymond/storageops/storage"
)

const defaultS3Region = "us-east-1"

// s3API is the subset of *s3.Client the adapter uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3 stores objects in one bucket of AWS S3 or an S3-compatible service.
type S3 struct {
	id     string
	kind   string
	bucket string
	client s3API
}

var _ storage.Backend = (*S3)(nil)

// NewS3 builds an S3 client from bc. Static credentials are used when an
// access key is configured; otherwise the default AWS credential chain
// applies. SDK retries are disabled since the router retries.
func NewS3(ctx context.Context, bc config.BackendConfig) (*S3, error) {
	if bc.Bucket == "" {
		return nil, errors.New("backends: s3 bucket must not be empty")
	}

	region := bc.Region
	if region == "" {
		region = defaultS3Region
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(1),
	}
	if bc.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(bc.AccessKeyID, bc.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("backends: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if bc.Endpoint != "" {
			o.BaseEndpoint = aws.String(bc.Endpoint)
		}
		if bc.ForcePathStyle || bc.Kind == config.KindS3Emulator {
			o.UsePathStyle = true
		}
	})

	return newS3WithClient(bc.ID, bc.Kind, bc.Bucket, client), nil
}

func newS3WithClient(id, kind, bucket string, client s3API) *S3 {
	if kind == "" {
		kind = config.KindS3
	}
	return &S3{id: id, kind: kind, bucket: bucket, client: client}
}

// ID returns the backend identifier.
func (b *S3) ID() string { return b.id }

// Kind returns "s3" or "s3-emulator".
func (b *S3) Kind() string { return b.kind }

// Bucket returns the bucket name.
func (b *S3) Bucket() string { return b.bucket }

// Probe issues HeadBucket.
func (b *S3) Probe(ctx context.Context) health.ProbeResult {
	return timedProbe(ctx, func(ctx context.Context) error {
		_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
		return err
	})
}

// Call performs one request against the bucket.
func (b *S3) Call(ctx context.Context, op storage.Operation) resilience.Outcome[storage.Result] {
	if err := storage.ValidateKey(op.Key); err != nil {
		return permanent(err)
	}

	switch op.Type {
	case storage.OpUpload:
		in := &s3.PutObjectInput{
			Bucket:        aws.String(b.bucket),
			Key:           aws.String(op.Key),
			Body:          bytes.NewReader(op.Data),
			ContentLength: aws.Int64(int64(len(op.Data))),
		}
		if op.ContentType != "" {
			in.ContentType = aws.String(op.ContentType)
		}
		out, err := b.client.PutObject(ctx, in)
		if err != nil {
			return b.failure(op.Key, err)
		}
		return succeeded(storage.Result{
			Key:         op.Key,
			Size:        int64(len(op.Data)),
			Exists:      true,
			ETag:        trimETag(aws.ToString(out.ETag)),
			ContentType: op.ContentType,
		})

	case storage.OpDownload:
		out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(op.Key),
		})
		if err != nil {
			return b.failure(op.Key, err)
		}
		defer out.Body.Close()

		data, err := io.ReadAll(out.Body)
		if err != nil {
			return transient(fmt.Errorf("backends: %s: read object body: %w", b.id, err))
		}
		return succeeded(storage.Result{
			Key:         op.Key,
			Data:        data,
			Size:        int64(len(data)),
			Exists:      true,
			ETag:        trimETag(aws.ToString(out.ETag)),
			ContentType: aws.ToString(out.ContentType),
		})

	case storage.OpDelete:
		_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(op.Key),
		})
		if err != nil && !isS3NotFound(err) {
			return b.failure(op.Key, err)
		}
		return succeeded(storage.Result{Key: op.Key})

	case storage.OpExists:
		out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(op.Key),
		})
		switch {
		case err != nil && isS3NotFound(err):
			return succeeded(storage.Result{Key: op.Key})
		case err != nil:
			return b.failure(op.Key, err)
		}
		return succeeded(storage.Result{
			Key:         op.Key,
			Size:        aws.ToInt64(out.ContentLength),
			Exists:      true,
			ETag:        trimETag(aws.ToString(out.ETag)),
			ContentType: aws.ToString(out.ContentType),
		})

	default:
		return permanent(fmt.Errorf("%w: unknown operation type %d", storage.ErrInvalidOperation, op.Type))
	}
}

func (b *S3) failure(key string, err error) resilience.Outcome[storage.Result] {
	switch {
	case isS3NotFound(err):
		return notFound(key, err)
	case s3Permanent(err):
		return permanent(fmt.Errorf("backends: %s: %w", b.id, err))
	default:
		return transient(fmt.Errorf("backends: %s: %w", b.id, err))
	}
}

// isS3NotFound reports a missing object. A missing bucket is a
// configuration problem and is not reported here.
func isS3NotFound(err error) bool {
	switch {
	case isErrorType[*s3types.NoSuchBucket](err):
		return false
	case isErrorType[*s3types.NoSuchKey](err), isErrorType[*s3types.NotFound](err):
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		case "NoSuchBucket":
			return false
		}
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == 404
}

// s3Permanent classifies a failed request. Unknown errors, including
// network failures, are transient.
func s3Permanent(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket", "AccessDenied", "InvalidAccessKeyId",
			"SignatureDoesNotMatch", "InvalidBucketName", "InvalidArgument", "EntityTooLarge":
			return true
		case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout",
			"InternalError", "ServiceUnavailable":
			return false
		}
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return permanentStatus(re.HTTPStatusCode())
	}
	return false
}

package backends

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/jonwraymond/storageops/resilience"
	"github.com/jonwraymond/storageops/storage"
)

type s3Object struct {
	data        []byte
	contentType string
}

// fakeS3 is an in-memory bucket. When err is set every call fails with it.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]s3Object
	err     error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string]s3Object{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = s3Object{data: data, contentType: aws.ToString(in.ContentType)}
	return &s3.PutObjectOutput{ETag: aws.String(`"etag-1"`)}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		ETag:        aws.String(`"etag-1"`),
		ContentType: aws.String(obj.contentType),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ETag:          aws.String(`"etag-1"`),
		ContentType:   aws.String(obj.contentType),
	}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &s3.HeadBucketOutput{}, f.err
}

func httpError(status int, cause error) error {
	return &smithy.OperationError{
		ServiceID:     "S3",
		OperationName: "GetObject",
		Err: &awshttp.ResponseError{
			ResponseError: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
				Err:      cause,
			},
		},
	}
}

func TestS3_RoundTrip(t *testing.T) {
	fake := newFakeS3()
	b := newS3WithClient("s3", "", "docs", fake)
	ctx := context.Background()

	if b.Kind() != "s3" || b.Bucket() != "docs" {
		t.Errorf("Kind/Bucket = %s/%s", b.Kind(), b.Bucket())
	}

	up := b.Call(ctx, storage.Upload("a/b.json", []byte(`{}`), "application/json"))
	if !up.OK() {
		t.Fatalf("upload failed: %v", up.Err)
	}
	if up.Value.ETag != "etag-1" || up.Value.Size != 2 {
		t.Errorf("upload result = %+v", up.Value)
	}
	if got := fake.objects["a/b.json"].contentType; got != "application/json" {
		t.Errorf("stored content type = %q", got)
	}

	down := b.Call(ctx, storage.Download("a/b.json"))
	if !down.OK() || string(down.Value.Data) != "{}" || down.Value.ContentType != "application/json" {
		t.Errorf("download = %+v, %v", down.Value, down.Err)
	}

	ex := b.Call(ctx, storage.Exists("a/b.json"))
	if !ex.OK() || !ex.Value.Exists || ex.Value.Size != 2 {
		t.Errorf("exists = %+v, %v", ex.Value, ex.Err)
	}

	if del := b.Call(ctx, storage.Delete("a/b.json")); !del.OK() {
		t.Fatalf("delete failed: %v", del.Err)
	}
	if ex := b.Call(ctx, storage.Exists("a/b.json")); !ex.OK() || ex.Value.Exists {
		t.Errorf("exists after delete = %+v, %v", ex.Value, ex.Err)
	}
}

func TestS3_DownloadMissing(t *testing.T) {
	b := newS3WithClient("s3", "", "docs", newFakeS3())

	out := b.Call(context.Background(), storage.Download("nope"))
	if out.Kind != resilience.OutcomePermanent || !errors.Is(out.Err, storage.ErrNotFound) {
		t.Errorf("outcome = %v %v, want permanent ErrNotFound", out.Kind, out.Err)
	}
}

func TestS3_InvalidKey(t *testing.T) {
	b := newS3WithClient("s3", "", "docs", newFakeS3())

	out := b.Call(context.Background(), storage.Upload("../x", nil, ""))
	if out.Kind != resilience.OutcomePermanent || !errors.Is(out.Err, storage.ErrInvalidOperation) {
		t.Errorf("outcome = %v %v, want permanent ErrInvalidOperation", out.Kind, out.Err)
	}
}

func TestS3_Failures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     resilience.OutcomeKind
		notFound bool
	}{
		{"no such key", &s3types.NoSuchKey{}, resilience.OutcomePermanent, true},
		{"head not found", httpError(404, &s3types.NotFound{}), resilience.OutcomePermanent, true},
		{"bare 404", httpError(404, errors.New("not found")), resilience.OutcomePermanent, true},
		{"no such bucket", httpError(404, &s3types.NoSuchBucket{}), resilience.OutcomePermanent, false},
		{"access denied", httpError(403, &smithy.GenericAPIError{Code: "AccessDenied"}), resilience.OutcomePermanent, false},
		{"bad request", httpError(400, errors.New("bad")), resilience.OutcomePermanent, false},
		{"slow down", httpError(503, &smithy.GenericAPIError{Code: "SlowDown"}), resilience.OutcomeTransient, false},
		{"throttled 429", httpError(429, errors.New("too many")), resilience.OutcomeTransient, false},
		{"request timeout 408", httpError(408, errors.New("timeout")), resilience.OutcomeTransient, false},
		{"server error", httpError(500, &smithy.GenericAPIError{Code: "InternalError"}), resilience.OutcomeTransient, false},
		{"network", errors.New("dial tcp 127.0.0.1:9000: connect: connection refused"), resilience.OutcomeTransient, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeS3()
			fake.err = tt.err
			b := newS3WithClient("s3", "", "docs", fake)

			out := b.Call(context.Background(), storage.Download("k"))
			if out.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", out.Kind, tt.want)
			}
			if got := errors.Is(out.Err, storage.ErrNotFound); got != tt.notFound {
				t.Errorf("errors.Is(ErrNotFound) = %v, want %v", got, tt.notFound)
			}
			if !errors.Is(out.Err, tt.err) {
				t.Error("outcome error does not wrap the SDK error")
			}
		})
	}
}

func TestS3_ExistsAndDeleteTolerateNotFound(t *testing.T) {
	fake := newFakeS3()
	fake.err = httpError(404, errors.New("not found"))
	b := newS3WithClient("s3", "", "docs", fake)
	ctx := context.Background()

	if out := b.Call(ctx, storage.Exists("k")); !out.OK() || out.Value.Exists {
		t.Errorf("exists = %+v, %v", out.Value, out.Err)
	}
	if out := b.Call(ctx, storage.Delete("k")); !out.OK() {
		t.Errorf("delete = %v", out.Err)
	}
}

func TestS3_Probe(t *testing.T) {
	fake := newFakeS3()
	b := newS3WithClient("s3", "s3-emulator", "docs", fake)

	if res := b.Probe(context.Background()); !res.OK {
		t.Errorf("Probe() = %+v, want OK", res)
	}

	fake.err = httpError(503, errors.New("unavailable"))
	res := b.Probe(context.Background())
	if res.OK || res.Err == nil {
		t.Errorf("Probe() = %+v, want failure", res)
	}
}

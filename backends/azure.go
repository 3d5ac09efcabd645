package backends

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/jonwraymond/storageops/config"
	"github.com/jonwraymond/storageops/health"
	"github.com/jonwraymond/storageops/resilience"
	"github.com/jonwraymond/storageops/storage"
)

// blobProps is what the adapter reads back from a blob.
type blobProps struct {
	Data        []byte
	Size        int64
	ETag        string
	ContentType string
}

// blobStore is one container seen by the adapter.
type blobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (etag string, err error)
	Download(ctx context.Context, key string) (blobProps, error)
	Delete(ctx context.Context, key string) error
	Properties(ctx context.Context, key string) (blobProps, error)
	Ping(ctx context.Context) error
}

// Azure stores objects as block blobs in one container.
type Azure struct {
	id        string
	kind      string
	container string
	store     blobStore
}

var _ storage.Backend = (*Azure)(nil)

// NewAzure builds a container client from the connection string in bc.
// SDK retries are disabled since the router retries.
func NewAzure(bc config.BackendConfig) (*Azure, error) {
	if bc.Container == "" {
		return nil, errors.New("backends: azure container must not be empty")
	}
	opts := &container.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	client, err := container.NewClientFromConnectionString(bc.ConnectionString, bc.Container, opts)
	if err != nil {
		return nil, fmt.Errorf("backends: azure client: %w", err)
	}
	return newAzureWithStore(bc.ID, bc.Kind, bc.Container, containerStore{client}), nil
}

func newAzureWithStore(id, kind, containerName string, store blobStore) *Azure {
	if kind == "" {
		kind = config.KindAzure
	}
	return &Azure{id: id, kind: kind, container: containerName, store: store}
}

// ID returns the backend identifier.
func (a *Azure) ID() string { return a.id }

// Kind returns "azure" or "azurite".
func (a *Azure) Kind() string { return a.kind }

// Container returns the container name.
func (a *Azure) Container() string { return a.container }

// Probe reads the container properties.
func (a *Azure) Probe(ctx context.Context) health.ProbeResult {
	return timedProbe(ctx, a.store.Ping)
}

// Call performs one request against the container.
func (a *Azure) Call(ctx context.Context, op storage.Operation) resilience.Outcome[storage.Result] {
	if err := storage.ValidateKey(op.Key); err != nil {
		return permanent(err)
	}

	switch op.Type {
	case storage.OpUpload:
		etag, err := a.store.Upload(ctx, op.Key, op.Data, op.ContentType)
		if err != nil {
			return a.failure(op.Key, err)
		}
		return succeeded(storage.Result{
			Key:         op.Key,
			Size:        int64(len(op.Data)),
			Exists:      true,
			ETag:        trimETag(etag),
			ContentType: op.ContentType,
		})

	case storage.OpDownload:
		p, err := a.store.Download(ctx, op.Key)
		if err != nil {
			return a.failure(op.Key, err)
		}
		return succeeded(storage.Result{
			Key:         op.Key,
			Data:        p.Data,
			Size:        int64(len(p.Data)),
			Exists:      true,
			ETag:        trimETag(p.ETag),
			ContentType: p.ContentType,
		})

	case storage.OpDelete:
		if err := a.store.Delete(ctx, op.Key); err != nil && !isBlobNotFound(err) {
			return a.failure(op.Key, err)
		}
		return succeeded(storage.Result{Key: op.Key})

	case storage.OpExists:
		p, err := a.store.Properties(ctx, op.Key)
		switch {
		case err != nil && isBlobNotFound(err):
			return succeeded(storage.Result{Key: op.Key})
		case err != nil:
			return a.failure(op.Key, err)
		}
		return succeeded(storage.Result{
			Key:         op.Key,
			Size:        p.Size,
			Exists:      true,
			ETag:        trimETag(p.ETag),
			ContentType: p.ContentType,
		})

	default:
		return permanent(fmt.Errorf("%w: unknown operation type %d", storage.ErrInvalidOperation, op.Type))
	}
}

func (a *Azure) failure(key string, err error) resilience.Outcome[storage.Result] {
	switch {
	case isBlobNotFound(err):
		return notFound(key, err)
	case azurePermanent(err):
		return permanent(fmt.Errorf("backends: %s: %w", a.id, err))
	default:
		return transient(fmt.Errorf("backends: %s: %w", a.id, err))
	}
}

// isBlobNotFound reports a missing blob. HEAD responses carry no error
// code, so a bare 404 counts unless the container itself is missing.
func isBlobNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return true
	}
	if bloberror.HasCode(err, bloberror.ContainerNotFound) {
		return false
	}
	var re *azcore.ResponseError
	return errors.As(err, &re) && re.StatusCode == 404
}

// azurePermanent classifies a failed request with the same policy as S3.
func azurePermanent(err error) bool {
	switch {
	case bloberror.HasCode(err,
		bloberror.BlobNotFound,
		bloberror.ContainerNotFound,
		bloberror.AuthenticationFailed,
		bloberror.AuthorizationFailure,
		bloberror.InvalidResourceName,
		bloberror.RequestBodyTooLarge,
	):
		return true
	case bloberror.HasCode(err,
		bloberror.ServerBusy,
		bloberror.OperationTimedOut,
		bloberror.InternalError,
	):
		return false
	}
	var re *azcore.ResponseError
	if errors.As(err, &re) {
		return permanentStatus(re.StatusCode)
	}
	return false
}

// containerStore adapts *container.Client to blobStore.
type containerStore struct {
	client *container.Client
}

func (s containerStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	opts := &blockblob.UploadOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}
	resp, err := s.client.NewBlockBlobClient(key).Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), opts)
	if err != nil {
		return "", err
	}
	return etagString(resp.ETag), nil
}

func (s containerStore) Download(ctx context.Context, key string) (blobProps, error) {
	resp, err := s.client.NewBlobClient(key).DownloadStream(ctx, nil)
	if err != nil {
		return blobProps{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return blobProps{}, fmt.Errorf("read blob body: %w", err)
	}
	return blobProps{
		Data:        data,
		Size:        int64(len(data)),
		ETag:        etagString(resp.ETag),
		ContentType: deref(resp.ContentType),
	}, nil
}

func (s containerStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.NewBlobClient(key).Delete(ctx, nil)
	return err
}

func (s containerStore) Properties(ctx context.Context, key string) (blobProps, error) {
	resp, err := s.client.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		return blobProps{}, err
	}
	p := blobProps{ETag: etagString(resp.ETag), ContentType: deref(resp.ContentType)}
	if resp.ContentLength != nil {
		p.Size = *resp.ContentLength
	}
	return p, nil
}

func (s containerStore) Ping(ctx context.Context) error {
	_, err := s.client.GetProperties(ctx, nil)
	return err
}

func etagString(e *azcore.ETag) string {
	if e == nil {
		return ""
	}
	return string(*e)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/jonwraymond/storageops/resilience"
)

// OpType is the kind of storage operation.
type OpType int

const (
	OpUpload OpType = iota + 1
	OpDownload
	OpDelete
	OpExists
)

// String returns the string representation of the operation type.
func (t OpType) String() string {
	switch t {
	case OpUpload:
		return "upload"
	case OpDownload:
		return "download"
	case OpDelete:
		return "delete"
	case OpExists:
		return "exists"
	default:
		return "unknown"
	}
}

// ParseOpType parses an operation name.
func ParseOpType(s string) (OpType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upload", "put":
		return OpUpload, nil
	case "download", "get":
		return OpDownload, nil
	case "delete":
		return OpDelete, nil
	case "exists", "head":
		return OpExists, nil
	}
	return 0, fmt.Errorf("%w: unknown operation type %q", ErrInvalidOperation, s)
}

// Operation is one storage request delegated to a single backend.
type Operation struct {
	Type        OpType
	Key         string
	Data        []byte
	ContentType string
}

// Upload returns an upload operation.
func Upload(key string, data []byte, contentType string) Operation {
	return Operation{Type: OpUpload, Key: key, Data: data, ContentType: contentType}
}

// Download returns a download operation.
func Download(key string) Operation { return Operation{Type: OpDownload, Key: key} }

// Delete returns a delete operation.
func Delete(key string) Operation { return Operation{Type: OpDelete, Key: key} }

// Exists returns an existence check.
func Exists(key string) Operation { return Operation{Type: OpExists, Key: key} }

// Validate rejects operations no backend could serve. The returned error is
// permanent.
func (o Operation) Validate() error {
	if o.Type < OpUpload || o.Type > OpExists {
		return resilience.Permanent(fmt.Errorf("%w: unknown operation type %d", ErrInvalidOperation, o.Type))
	}
	if err := ValidateKey(o.Key); err != nil {
		return resilience.Permanent(err)
	}
	return nil
}

// ValidateKey checks that key is a relative slash-separated path that stays
// inside the backend namespace.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("%w: empty key", ErrInvalidOperation)
	case strings.HasPrefix(key, "/"), strings.HasPrefix(key, `\`):
		return fmt.Errorf("%w: absolute key %q", ErrInvalidOperation, key)
	case strings.ContainsRune(key, 0):
		return fmt.Errorf("%w: key contains NUL", ErrInvalidOperation)
	}
	for _, seg := range strings.Split(strings.ReplaceAll(key, `\`, "/"), "/") {
		if seg == ".." {
			return fmt.Errorf("%w: key %q escapes the namespace", ErrInvalidOperation, key)
		}
	}
	if path.Clean(key) == "." {
		return fmt.Errorf("%w: key %q names the root", ErrInvalidOperation, key)
	}
	return nil
}

// Result is the value a backend returns for an operation.
type Result struct {
	Key         string `json:"key"`
	Data        []byte `json:"-"`
	Size        int64  `json:"size"`
	Exists      bool   `json:"exists"`
	ETag        string `json:"etag,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Package backends provides storage.Backend adapters for local disk, S3
// (and S3-compatible emulators such as MinIO) and Azure Blob Storage (and
// Azurite).
//
// Every adapter performs exactly one attempt per Call; retries, circuit
// breaking and failover belong to storage.Router, so the SDK clients are
// built with their own retries disabled. Each adapter classifies its
// failures:
//
//   - missing objects, bad requests and authorization failures are
//     permanent and stop routing;
//   - throttling, timeouts, 5xx responses and network errors are transient.
//
// Downloading a missing key fails with storage.ErrNotFound. Exists on a
// missing key succeeds with Result.Exists false, and Delete on a missing
// key succeeds.
//
// # Basic Usage
//
//	cfg, err := config.Load(ctx, "")
//	if err != nil {
//	    return err
//	}
//	all, err := backends.NewAll(ctx, cfg.Backends)
//	if err != nil {
//	    return err
//	}
//	router, err := storage.NewRouter(rc, all, storage.WithMonitor(mon))
package backends

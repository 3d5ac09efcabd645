// Package config loads the storageops configuration.
//
// Sources are layered, later ones winning:
//
//  1. Defaults (see Default)
//  2. A YAML file, expanded with secret.ExpandEnvStrict before parsing
//  3. Environment variables, after loading .env files with godotenv
//
// Credential fields (access keys, secrets and connection strings) may hold
// secret references such as secretref:env:NAME or secretref:file:/path; they
// are resolved after merging. The merged result is validated and any
// violation is returned as an error before anything starts.
//
// Backends can be declared in the YAML backends list or through the
// provider variables (STORAGE_LOCAL_PATH, S3_BUCKET, MINIO_ENDPOINT,
// AZURE_STORAGE_CONNECTION_STRING, AZURITE_CONNECTION_STRING), which create
// or override the backends with IDs local, s3, minio, azure and azurite.
//
// YAML durations are Go duration strings ("30s"). Environment variables
// ending in _MS are integer milliseconds; the health check interval and
// timeout accept either form.
package config

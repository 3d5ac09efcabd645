// Package secret resolves credentials referenced from configuration.
//
// It supports:
//   - Strict environment expansion (see ExpandEnvStrict)
//   - Secret providers for environment variables and mounted files
//   - Resolving secret references in configuration values (see Resolver)
//
// References use the prefix "secretref:":
//   - Full value:  secretref:env:S3_SECRET_ACCESS_KEY
//   - From a file: secretref:file:/run/secrets/azure-connection-string
//   - Inline use:  AccountKey=secretref:env:AZURE_ACCOUNT_KEY
package secret

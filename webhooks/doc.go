// Package webhooks authenticates and processes inbound order notifications.
//
// A delivery moves through verify -> parse -> ingest. Verification failures
// never reach the ingestion service, and every outcome maps to a stable HTTP
// status so the sender knows whether to retry.
package webhooks

package services

import "log"

// Signer produces a signed artifact for a packaged version. It runs inside
// the approve transaction: a signing failure aborts the whole action.
type Signer interface {
	Sign(versionID uint) (artifactPath string, err error)
}

// Indexer receives post-commit reindex requests. Calls are best-effort,
// at-least-once; failures are logged, never surfaced to the reviewer.
type Indexer interface {
	Reindex(webappID uint)
}

// NoopSigner approves without producing an artifact. Used for hosted-only
// deployments and tests.
type NoopSigner struct{}

func (NoopSigner) Sign(versionID uint) (string, error) { return "", nil }

// LogIndexer stands in for the search cluster when none is configured.
type LogIndexer struct{}

func (LogIndexer) Reindex(webappID uint) {
	log.Printf("reindex requested for webapp %d", webappID)
}

// Package model defines the core data structures shared by owlpair's
// dialogue orchestrator and its crawl/extract pipeline.
//
// This package contains the following main types:
//   - Message: one immutable chat message exchanged between agents
//   - TurnResult: the outcome of a single agent step
//   - Transcript: the append-only record of a dialogue run
//   - Page: a crawled HTML page
//   - ImageCaption: a downloaded and captioned image
//   - Document: the flattened extraction result for one seed
//   - RunResult: answer, transcript and usage of a finished run
//
// The models live in their own package so that the crawler, extractor,
// agent adapter, orchestrator, database and report packages can share them
// without import cycles. All types serialize to JSON for reports and storage.
package model

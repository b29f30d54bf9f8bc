// Package agent connects the dialogue to OpenAI-compatible chat models.
//
// ChatAgent keeps one conversation history per agent, starting with its
// system message, and resolves function calls through a Registry before
// returning the final assistant message of a step. Client is the shared
// HTTP transport with retry on transient failures.
//
// WebPageTool exposes the crawl-and-extract pipeline as a callable tool and
// VisionCaptioner captions downloaded images with a vision model.
package agent

// Package generation implements the card generation pipeline: cost
// estimation, content chunk planning, provider invocation with retry and
// failover, response parsing and validation, deduplication, and the
// orchestrator that composes them. It depends on external AI/LLM
// services only through the Provider interface, allowing the pipeline to
// run against any backend without coupling to a specific vendor SDK.
package generation

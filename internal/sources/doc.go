// Package sources maps URLs to source types and holds the capability
// contract every download implementation satisfies: fetch metadata, then
// download. The router performs a single closed lookup; no orchestration
// code branches on source type anywhere else.
package sources

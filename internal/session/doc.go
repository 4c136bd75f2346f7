// Package session owns the per-client session lifecycle: creation on
// connect, single-goroutine event serialization, utterance segmentation,
// recognition hand-off and outbound result dispatch.
package session

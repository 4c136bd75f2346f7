// Package codec decodes transport-level audio payloads into raw PCM frames.
package codec

// Package server implements the WebSocket transport for client audio
// sessions and the HTTP API for monitoring and management.
package server

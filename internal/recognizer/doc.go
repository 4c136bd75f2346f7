// Package recognizer adapts the gateway to a speech recognition backend
// under batch, streaming, and simulated strategies.
package recognizer

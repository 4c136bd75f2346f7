// Package event defines the inbound and outbound message schema exchanged
// with transport clients.
package event

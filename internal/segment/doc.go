// Package segment turns per-session audio frames and start/end markers into
// discrete utterance boundaries.
package segment

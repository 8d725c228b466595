// Package canon encodes traces and state snapshots as canonical JSON and
// computes domain-separated digests over them.
//
// Two runs that produce the same events produce byte-identical output,
// which is what golden-file comparison relies on.
package canon

// Package protocol implements the chat wire format: decoding of single-line
// JSON command frames into typed events, the closed set of outbound event
// shapes, and the error vocabulary reported to clients as "err" frames.
//
// The package is stateless; every function is safe for concurrent use.
package protocol

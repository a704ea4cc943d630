// Package network provides the HTTP transport used to talk to an external
// randomness oracle.
//
// # Core Components
//
// Server: receives opaque payloads POSTed by a remote party and hands them
// over on the Messages channel. The server acknowledges a payload with
// 202 Accepted only once it has been queued, and answers 503 when the queue
// is full so that the sender retries.
//
// Client: POSTs payloads and retries until the receiver accepts them, the
// context is cancelled or the configured timeout elapses.
//
// Payloads are raw bytes: encoding is left to the caller.
//
// # TLS
//
// WithCertificate and WithLimitedCAs enable HTTPS (optionally with mutual
// authentication). GenerateSelfSignedCert creates certificates for tests
// and local deployments.
package network

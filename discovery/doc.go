// Package discovery lets a randomness oracle announce itself on a known
// range of local ports, so that clients can find it without configuration.
//
// An Announcer serves its Entry as JSON on the first free port of the
// range; Find scans the range and returns every entry it reads.
package discovery

// Package oracle abstracts the external source of randomness used to pick the
// winner of a round.
//
// # Core Components
//
// Client: the protocol side of the boundary. It issues at most one request per
// round and validates every delivery before the protocol acts on it.
//
// Source: an oracle implementation. Requests return immediately; the value
// arrives later on the Deliveries channel, so the caller never depends on
// call-stack timing.
//
// Beacon: an in-process Source holding a kyber Ed25519 key pair. The value of
// a delivery is derived from a Schnorr signature over the round ID, which
// lets the Client check that the delivery really comes from the beacon.
//
// Remote: a Source reached over HTTP. Requests are POSTed to the oracle and
// deliveries come back on a callback network.Server.
//
// Service: exposes a Beacon over HTTP so that Remote clients can use it.
//
// # Wire Format
//
// Request:  {"round_id":1,"callback":"http://host:port/randomness"}
// Delivery: {"round_id":1,"value":42,"proof":"<hex schnorr signature>"}
package oracle

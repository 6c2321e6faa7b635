// Package gateway exposes a mediator over TCP.
//
// Each frame carries one protocol.Message whose command id a Router maps to
// a request type. The JSON payload is decoded into a fresh request value,
// sent through a mediate.Mediator resolving from a per-request Scope, and
// the response (or an ErrorBody with a non-OK status) is written back with
// the same command and request id. Frames flagged one-way get no reply.
package gateway

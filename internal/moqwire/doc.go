// Package moqwire implements the wire-level codec for MoQ Transport
// (draft-ietf-moq-transport-15) control messages: CLIENT_SETUP/SERVER_SETUP,
// SUBSCRIBE/SUBSCRIBE_OK/SUBSCRIBE_ERROR/UNSUBSCRIBE, and GOAWAY.
//
// This package has no session, relay, or transport logic; those live in
// internal/adapters/moqpreview.
package moqwire

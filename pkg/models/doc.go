// Package models holds the identities, presence records and event payloads shared by the
// coordinator, the channel and the document store.
//
// Payload field names follow the wire contract of the impact board backend (camelCase JSON keys).
// The same structs are used with the CBOR codec, which falls back to the json tags.
package models

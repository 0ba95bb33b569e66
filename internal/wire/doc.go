// Package wire maps domain values to and from their JSON shapes.
//
// Encoding goes through a Registry of per-type functions rather than struct
// tags on the domain types, since several shapes carry derived fields (a
// user's parent groups, a holder's metadata) or differ from the in-memory
// form (context sets). The API verifies at startup that every type a handler
// can return has an encoder.
//
// Decoders ignore unknown fields, accept enum values in any case and fail
// with ErrMalformed when a required field is missing or has the wrong type.
package wire

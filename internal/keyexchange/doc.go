// Package keyexchange implements the client side of the crypto key protocol.
//
// Each request is a JSON envelope POSTed with the account API key as a Bearer
// token and an HS256 JWT carrying the grant token. Responses are checked in
// order: HTTP status, JSON validity, the service error flag, request id
// correlation, and optionally the response checksum. Nothing is retried; the
// whole exchange is bounded by a 5 second timeout.
package keyexchange

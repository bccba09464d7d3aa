package domain

// Credential is the raw Authorization header value of the caller, forwarded
// verbatim to the upstream quote service. Empty means anonymous.
type Credential string

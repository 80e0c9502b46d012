package common

const (
	// AuthorizationHeaderName carries the primary session token as "Bearer <token>".
	AuthorizationHeaderName = "Authorization"

	// MediaTokenQueryParam carries the short-lived media token on view, stream
	// and thumbnail URLs, since <img> and <video> elements cannot set headers.
	MediaTokenQueryParam = "token"

	// IVSize is the AES block size; every stored IV is exactly this long.
	IVSize = 16
)

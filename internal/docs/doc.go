// Package docs serves the gateway's API documentation as embedded assets.
//
// The OpenAPI document and the Swagger UI page that renders it are compiled
// into the binary with go:embed. Any path that does not name an asset gets
// the UI page, so /docs/swagger-ui and /docs/ both land on it.
package docs

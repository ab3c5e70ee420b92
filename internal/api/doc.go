// Package api implements the HTTP front of roomgate.
//
// This package provides:
//   - Device routes: POST /uplink (alias /api/update) and GET /downlink
//     (alias /api/status)
//   - The operator command route: POST /command
//   - Admin session login and a WebSocket event feed for consoles
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Architecture
//
// Handlers stay thin: they read the body and the Authorization header, hand
// both to the gateway and map its verdict to a status code. The gateway owns
// the kill switch, credential checks, validation and store writes.
//
//	unauthorised     401
//	maintenance      503 with Retry-After
//	validation_error 400
//	upstream_error   502
//	upstream_partial 207 with written/failed field lists
//
// # Security
//
// Device credentials are static bearer tokens. Admin sessions are HS256
// JWTs issued by POST /api/v1/auth/login. WebSocket connections use
// single-use tickets so tokens stay out of URLs.
package api

// Package api provides the HTTP API and WebSocket stream of the RoboLink
// gateway.
//
// Routes under /api/v1 expose the presence registry, the persisted robot
// telemetry, and command dispatch to connected robots. Two plain-text
// routes, POST /robot/manage and POST /robot/ip, are kept for existing
// robot management clients.
//
// When security.jwt.secret is set, command routes require a bearer token
// with the robots:command scope. The WebSocket and GET /api/v1/audit
// require robots:read.
//
//	server, err := api.New(deps)
//	if err := server.Start(ctx); err != nil { ... }
//	defer server.Close()
package api

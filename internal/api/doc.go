// Package api serves the coop bridge over HTTP.
//
// It provides:
//   - The observer WebSocket endpoint, by default GET /ws
//   - GET /api/v1/health with bus, store and fanout status
//   - GET /api/v1/statuses and GET /api/v1/statuses/{key}/history,
//     read-only views of the status table and its change history
//   - Middleware for request IDs, request logging and panic recovery
//
// # WebSocket
//
// Each connection becomes a hub.Observer. The read pump hands every text
// frame to the bridge as an observer message; the write pump drains the
// observer's outbound queue and sends pings. When either pump exits the
// observer is disconnected from the bridge.
//
// The server is transport glue only. All ordering and consistency rules
// live in the bridge.
package api

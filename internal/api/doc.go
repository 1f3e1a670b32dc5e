// Package api implements the HTTP REST API and WebSocket server for Revend Core.
//
// This package provides:
//   - Session endpoints for the user app (prepare-insert, end, status)
//   - Detection history, point balance, and transaction listing
//   - Kiosk-facing classification and session-lookup endpoints
//   - WebSocket hub for real-time detection and session broadcasts
//   - Machine status served from the MQTT retained-message cache
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The API server sits between user interfaces (the mobile app), kiosk units,
// and the core detection pipeline. User requests carry a JWT issued by the
// external accounts service; the server only parses it for caller identity.
// Kiosk units authenticate with a shared machine token and drive the
// classify endpoint, which runs the full vision -> ledger -> broadcast
// pipeline and returns the verdict for the handoff protocol.
//
// # Security
//
// WebSocket connections use single-use tickets to keep the JWT out of URLs.
// Kiosk endpoints compare the machine token in constant time.
//
// # Graceful Degradation
//
// The server operates without MQTT: machine status reads return 404 and
// everything else continues to work.
package api

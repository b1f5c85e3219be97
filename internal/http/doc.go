// Package http provides HTTP handlers and middleware for the slot booking API.
//
// The router exposes the following endpoints:
//   - POST /sessions: issues a signed session token. Body: {"email","password"}.
//     Response: {"token","expires_at","user"} with the token also surfaced via the
//     `X-Session-Token` header and a `session_token` cookie. Rate limited per client.
//   - DELETE /sessions/current: clears the session cookie.
//   - POST /users: self-service signup. Body: {"email","password","company"}. Rate
//     limited per client.
//   - GET /me, PUT /me, PUT /me/password: the caller's account.
//   - GET /slots?date=YYYY-MM-DD: the date's slots with occupancy and reservations.
//   - POST /slots/generate: administrator only. Body: {"date"} or
//     {"from","to","weekdays"}.
//   - GET /reservations, POST /reservations, PUT /reservations/{id},
//     DELETE /reservations/{id}: company reservations exchanging the
//     `reservationDTO` payload defined in reservation_handler.go.
//   - GET /healthz: liveness.
//
// Every route other than login, signup and health requires a session token in the
// Authorization header, the `X-Session-Token` header or the `session_token` cookie.
package http

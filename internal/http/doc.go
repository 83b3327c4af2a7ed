// Package http provides HTTP handlers and middleware for the attendance API.
//
// The router exposes the following endpoints:
//   - POST /sessions: issues a session token. Body: {"email","password"}.
//     Response: {"token","expires_at"} with the token also surfaced via the
//     `X-Session-Token` header and a `session_token` cookie.
//   - DELETE /sessions/current: revokes the current session token extracted
//     from the Authorization header or session cookie. Returns 204 No Content
//     and clears the cookie.
//   - POST /events, GET /events/{id}, PUT /events/{id}, DELETE /events/{id}:
//     event definition management exchanging the `eventDTO` payload defined in
//     event_handler.go. Mutations require a coach or admin role.
//   - GET /events/{id}/occurrences?from=&to=: resolved occurrences within the
//     inclusive window, excluding deleted instances.
//   - DELETE /events/{id}/occurrences/{date}: deletes one recurring instance
//     by recording an exception (coach).
//   - PUT /events/{id}/lock: toggles the locked flag. Body: {"locked"}.
//   - PUT /events/{id}/groups: replaces the event's assigned groups.
//   - GET /events/{id}/expected-attendees: the expected set for the next
//     occurrence that has not started yet.
//   - POST /events/{id}/occurrences/{date}/token: issues a signed single-use
//     check-in token (coach).
//   - POST /events/{id}/occurrences/{date}/checkin: token, location or manual
//     check-in exchanging the `checkInRequest` payload in attendance_handler.go.
//   - POST /events/{id}/occurrences/{date}/checkout: closes the caller's
//     active record.
//   - PUT /events/{id}/occurrences/{date}/attendance/{userID}: manual status
//     write (coach).
//   - GET /events/{id}/occurrences/{date}/attendance: the occurrence's
//     records, scoped to the caller's role.
//   - GET /events/{id}/occurrences/{date}/audit: the append-only audit trail
//     (coach).
//
// Service errors surface as stable `error_code` strings in the JSON error
// body. Request/response DTOs live alongside their respective handlers so
// tests and documentation share the same ground truth.
package http

// Package accounts manages the trust state of user accounts across their
// lifecycle (unverified, active, blocked) and enforces that state on every
// request.
//
// User lifecycle:
//   - Users carry an AccountStatus field that is persisted via Bun. New
//     registrations start unverified, email confirmation moves them to active,
//     and administrators can block, unblock, or delete accounts in bulk.
//   - UserStateMachine centralizes the transition graph and persistence so
//     every legal edge is enforced in one place. There is no edge back to
//     unverified; illegal moves fail with ErrInvalidTransition.
//
// Confirmation tokens:
//   - ConfirmationTokenService issues single-use, expiring tokens bound to a
//     user and purpose. Validation and consumption are one conditional update,
//     so concurrent validators of the same token see exactly one success.
//
// Access gate:
//   - StatusGate re-reads the persisted status on every protected request and
//     can terminate the session or redirect before a handler runs. The status
//     claim embedded in a session token is advisory only; the gate never
//     trusts it for enforcement.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the authenticator,
//     the state machine, and the admin commands. Sinks run best-effort
//     (errors are logged). Blocked-account login failures are emitted as their
//     own event type so audit trails never conflate them with bad passwords.
package accounts

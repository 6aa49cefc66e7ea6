// Package progress maintains the push connection that streams status updates
// for one conversion job.
//
// A Channel moves through an explicit state machine:
//
//	Idle -> Connecting -> Connected -> Reconnecting -> Connecting -> ...
//	                                \-> Failed (reconnect attempts exhausted)
//	any  -> Closed (Disconnect)
//
// A failed first handshake leaves the channel Failed without retrying so the
// caller can switch to polling. Once connected, unexpected closes are retried
// with exponential backoff (base * 2^(n-1) for attempt n) up to MaxAttempts,
// after which OnError receives ErrMaxReconnectAttempts. All timers run on a
// clock.Clock, and at most one dial or pending reconnect exists at a time.
package progress

// Package notifier delivers chat messages through a transport.Sender with a
// token-bucket rate limit, bounded retries with jittered backoff and a short
// duplicate-suppression window.
//
// Deliver is synchronous and reports the final error, which is what the
// reminder path needs. Notify enqueues for the background workers and is
// used for best-effort notices.
package notifier

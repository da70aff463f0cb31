// Package session provides the in-memory server-side session store for the
// Flowdeck webserver.
//
// Sessions bind an opaque, cryptographically random identifier to a user
// with sliding idle expiration: every successful resolve refreshes the
// last-accessed time, so an actively used session never dies while an idle
// one dies once its idle time exceeds the configured timeout. Expired
// entries are removed lazily on access and by opportunistic sweeps; there is
// no background timer.
//
// The store is safe for concurrent use. Resolve is a single atomic
// read-modify-write so concurrent resolves of the same session cannot
// observe a half-refreshed entry.
package session

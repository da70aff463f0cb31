// Package userstore provides the durable user registry for the Flowdeck
// webserver.
//
// Users are keyed by username and persisted as a single JSON document; every
// mutation rewrites the file synchronously before returning. A missing or
// corrupt file is tolerated at load time by starting from an empty registry,
// so a damaged users file never blocks startup. Write failures surface as
// *StorageError.
//
// Role overrides configured by the operator (keyed by username or email) are
// applied on every upsert, and can be reloaded at runtime from a watched
// assignments file via Watcher.
package userstore

// Package cache defines generation-scoped response storage. A Backend hands out
// one Storage per application; a Storage holds named generations (the cache
// "stores") and can list or delete them; a Store is a single generation that
// maps request keys to persisted responses (status, headers, body). Put is
// atomic per key and last writer wins, so concurrent writers need no
// coordination. Two backends are provided: a filesystem layout
// (StoragePath/<app>/<generation>/<xx>/<sha256(key)>.entry, written via temp
// file + rename) and a single SQLite database.
package cache

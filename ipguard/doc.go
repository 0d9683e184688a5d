// Package ipguard keeps a temporary blocklist of abusive client IPs.
//
// Blocks are dual-written: Redis holds the durable entry under
// "blacklist:{ip}" with a TTL equal to the block duration, and an
// in-memory map serves reads without a network round-trip. On restart
// the map is rebuilt from Redis; while a process runs, expired entries
// leave the map lazily on check or through the periodic sweeper.
//
// Store outages follow an explicit policy: fail-closed (reject, the
// default) or fail-open (serve from the in-memory blocklist only).
package ipguard

// Package agent is the cache proxy agent of the countdown page. It reacts to
// the page lifecycle events (install, activate, fetch, sync, push and
// notification click) by mediating between a cache.Storage, the network and
// the host notification/window services.
//
// Fetch is cache-first: any generation holding the request answers without a
// network call. Misses go to the network and successful same-origin 200
// responses are written back to the current generation in the background;
// the write-back is returned as a Task so callers may await it.
package agent

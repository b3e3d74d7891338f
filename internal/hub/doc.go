// Package hub fans bridge events out to connected observers.
//
// An Observer is one live dashboard connection. It owns a bounded outbound
// queue drained by the transport's write loop; the hub never writes to a
// socket itself. When the queue is full the observer's overflow policy
// decides what happens:
//
//   - PolicyDisconnect closes the observer and evicts it from the hub.
//   - PolicyDropOldest discards the oldest queued message to make room.
//
// Either way a slow observer never blocks Broadcast for the others.
//
// Register enqueues a hydration snapshot before the observer joins the
// broadcast set, so the snapshot always precedes the first increment.
// Callers that need snapshot and broadcasts to be mutually consistent must
// serialize Register against their mutators; the bridge does this with its
// hydration gate.
//
// messages.go defines the JSON shapes exchanged with observers.
package hub

// Package bridge connects the device bus, the status table, the reading
// log, the durable store and the observer hub.
//
// A Bridge is an explicit context object: every collaborator is passed in
// through Options and nothing is global. Inbound sources are decoded into
// typed events and handed to Dispatch:
//
//	bus message   -> Decode -> ReadingObserved | StatusObserved | ClientLiveness
//	observer data -> DecodeInbound -> TriggerRequested
//
// # Consistency
//
// The bridge owns a hydration gate. Every mutation of in-memory state and
// its broadcast run together while holding the gate shared, so mutations
// on different devices proceed in parallel. Connect holds the gate
// exclusively while it builds the hydration snapshot and registers the
// observer. A new observer therefore sees each mutation exactly once:
// either in its snapshot or as a later increment.
//
// Lock order is key mutex, then gate, then hub or cache mutexes. Connect
// takes the gate and then the hub and cache mutexes, never a key mutex.
//
// # Persistence
//
// Durable writes go through a write-behind Submitter and never block the
// hot path. A rejected or failed write is logged; the broadcast has
// already happened and in-memory state stays authoritative until the
// store recovers.
//
// # Periodic publications
//
// Start runs three loops: the time beacon (qos 0), the sunrise/sunset
// republisher (qos 2) and the daily status history prune.
package bridge

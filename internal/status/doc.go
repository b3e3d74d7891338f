// Package status holds the canonical device status table.
//
// Two kinds of device exist. Binary devices (lights, heaters) take the
// states off and on. Motion devices (the coop door) take open and closed as
// terminal states and opening and closing while the actuator runs.
//
// Updates arrive on two paths:
//
//   - Authoritative updates come from the bus. They are accepted verbatim
//     as long as the state belongs to the device's kind.
//   - Optimistic updates come from observer triggers. Only a motion device
//     resting in a terminal state moves, to the state configured for that
//     terminal state (closed -> closing and open -> opening by default).
//     A device already in motion is not re-triggered.
//
// Table serializes read-modify-write per key and leaves different keys
// independent. Every accepted change runs a commit callback while the key
// is still locked, so callers observe changes for one key in table order.
//
// SQLiteRepository and SQLiteHistoryRepository persist current rows and the
// change history to the statuses and status_history tables.
package status

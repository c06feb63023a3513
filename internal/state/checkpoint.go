/*
Package state implements the Scan State Manager (spec §4.6): atomic,
versioned checkpoints of scan progress and accumulated discoveries, with
validation, backups, and an auto-save ticker.

Atomic writes are grounded on golang-migrate/migrate's dependency on
github.com/google/renameio/v2, which the pack pulls in for exactly this
temp-then-rename-on-the-same-filesystem primitive; this package uses it
directly instead of hand-rolling os.Rename, matching spec §4.6's
"every write goes temp->rename on the same filesystem" and §8 property 5
("the scan state file never appears in a partially written state to
external observers").
*/
package state

import (
	"time"

	"github.com/oss-modbus/scanner"
)

// SchemaVersion is the checkpoint schema this package reads and writes.
// Compatibility is exact-match for this iteration (spec §4.6, §9's open
// question: "a forward-compatible version-range policy is left as a
// tunable").
const SchemaVersion = "1.0"

// Checkpoint is the full persisted snapshot of a scan: configuration,
// options, progress state, and every discovery record emitted so far.
// Callbacks are never part of it — spec §9's design note is explicit
// that callbacks rebind fresh on resume.
type Checkpoint struct {
	SchemaVersion string              `json:"schema_version"`
	Config        scan.Config         `json:"config"`
	Options       scan.Options        `json:"options"`
	State         scan.State          `json:"state"`
	Records       []scan.DiscoveryRecord `json:"records"`
	SavedAt       time.Time           `json:"saved_at"`
}

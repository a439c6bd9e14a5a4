package types

// Direction is the traversal or sort order.
type Direction string

const (
	// Asc orders ascending (host "next")
	Asc Direction = "asc"

	// Desc orders descending (host "prev")
	Desc Direction = "desc"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Asc || d == Desc
}

// ImportMode selects how import treats existing rows.
type ImportMode string

const (
	// ImportReplace clears each targeted table before writing
	ImportReplace ImportMode = "replace"

	// ImportMerge inserts rows and fails on key collisions
	ImportMerge ImportMode = "merge"

	// ImportUpsert inserts or overwrites rows by primary key
	ImportUpsert ImportMode = "upsert"
)

// Valid reports whether m is a known import mode.
func (m ImportMode) Valid() bool {
	switch m {
	case ImportReplace, ImportMerge, ImportUpsert:
		return true
	}
	return false
}

// Snapshot is the portable export format.
type Snapshot struct {
	// Metadata is present unless the export excluded it
	Metadata *SnapshotMetadata `json:"metadata,omitempty"`

	// Data maps table name to its rows
	Data map[string][]Record `json:"data"`
}

// SnapshotMetadata describes where and when a snapshot was taken.
type SnapshotMetadata struct {
	// DBName is the logical database name
	DBName string `json:"dbName"`

	// Version is the host engine version at export time
	Version int `json:"version"`

	// ExportedAt is an ISO-8601 timestamp
	ExportedAt string `json:"exportedAt"`

	// Tables lists exported tables in export order
	Tables []string `json:"tables"`
}

// RowCount returns the total number of rows across all tables.
func (s *Snapshot) RowCount() int {
	n := 0
	for _, rows := range s.Data {
		n += len(rows)
	}
	return n
}

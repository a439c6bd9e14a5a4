package snapshot

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang/snappy"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/pkg/types"
)

// Format is a snapshot encoding.
type Format string

const (
	// FormatJSON is the plain export file format
	FormatJSON Format = "json"

	// FormatSnappy is FormatJSON compressed with snappy block encoding
	FormatSnappy Format = "snappy"
)

// Extension returns the file extension for f.
func (f Format) Extension() string {
	if f == FormatSnappy {
		return ".json.sz"
	}
	return ".json"
}

// FormatForPath picks the format from a file or object name.
func FormatForPath(path string) Format {
	if strings.HasSuffix(path, ".sz") || strings.HasSuffix(path, ".snappy") {
		return FormatSnappy
	}
	return FormatJSON
}

// Encode serializes snap.
func Encode(snap *types.Snapshot, format Format) ([]byte, error) {
	if snap.Data == nil {
		snap = &types.Snapshot{Metadata: snap.Metadata, Data: map[string][]types.Record{}}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to encode: %w", err)
	}
	switch format {
	case FormatJSON, "":
		return data, nil
	case FormatSnappy:
		return snappy.Encode(nil, data), nil
	}
	return nil, fmt.Errorf("snapshot: unknown format %q", format)
}

// Decode parses data written by Encode.
func Decode(data []byte, format Format) (*types.Snapshot, error) {
	switch format {
	case FormatJSON, "":
	case FormatSnappy:
		raw, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, arkerrors.NewStorageError(arkerrors.CodeCorruptSnapshot, "snapshot is not valid snappy data", err)
		}
		data = raw
	default:
		return nil, fmt.Errorf("snapshot: unknown format %q", format)
	}

	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, arkerrors.NewStorageError(arkerrors.CodeCorruptSnapshot, "snapshot is not valid JSON", err)
	}
	if snap.Data == nil {
		snap.Data = map[string][]types.Record{}
	}
	return &snap, nil
}

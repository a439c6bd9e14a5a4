package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"time"

	"github.com/dustin/go-humanize"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/internal/storage"
	"github.com/arkilian/arkdb/pkg/types"
)

// ObjectName builds a storage path for a snapshot of dbName taken at t.
func ObjectName(prefix, dbName string, t time.Time, format Format) string {
	name := fmt.Sprintf("%s-%s%s", dbName, t.UTC().Format("20060102T150405Z"), format.Extension())
	return path.Join(prefix, name)
}

// Save encodes snap and writes it to objectPath. Without overwrite an
// existing object is left alone and Save fails.
func Save(ctx context.Context, store storage.ObjectStorage, objectPath string, snap *types.Snapshot, format Format, overwrite bool) error {
	data, err := Encode(snap, format)
	if err != nil {
		return err
	}

	put := store.Put
	if !overwrite {
		put = store.PutIfAbsent
	}
	if _, err := put(ctx, objectPath, data); err != nil {
		if errors.Is(err, storage.ErrPreconditionFailed) {
			return arkerrors.NewStorageError(arkerrors.CodeUploadFailed,
				fmt.Sprintf("snapshot %s already exists", objectPath), err)
		}
		return arkerrors.NewStorageError(arkerrors.CodeUploadFailed, "failed to save snapshot", err)
	}

	log.Printf("snapshot: saved %s (%d rows, %s)", objectPath, snap.RowCount(), humanize.Bytes(uint64(len(data))))
	return nil
}

// Load reads and decodes the snapshot at objectPath. The format follows
// the object name.
func Load(ctx context.Context, store storage.ObjectStorage, objectPath string) (*types.Snapshot, error) {
	data, err := store.Get(ctx, objectPath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, arkerrors.NewStorageError(arkerrors.CodeObjectNotFound,
				fmt.Sprintf("snapshot %s not found", objectPath), err)
		}
		return nil, arkerrors.NewStorageError(arkerrors.CodeDownloadFailed, "failed to load snapshot", err)
	}

	snap, err := Decode(data, FormatForPath(objectPath))
	if err != nil {
		return nil, err
	}
	log.Printf("snapshot: loaded %s (%d rows, %s)", objectPath, snap.RowCount(), humanize.Bytes(uint64(len(data))))
	return snap, nil
}

package snapshot

import (
	"path/filepath"
	"strings"

	"github.com/standardbeagle/methodmap/internal/debug"
	mmerrors "github.com/standardbeagle/methodmap/internal/errors"
	"github.com/standardbeagle/methodmap/internal/storage"
)

// ExtractResult locates the files one extraction produced
type ExtractResult struct {
	SnapshotPath string    `json:"snapshotPath"`
	ArtifactPath string    `json:"artifactPath"`
	Keys         []string  `json:"keys"`
	Missing      []string  `json:"missing,omitempty"`
	Snapshot     *Snapshot `json:"-"`
}

// Extract snapshots keys and writes <dir>/<ts>.json plus the edit artifact
// <dir>/<ts>.edit<ext>, where ts is the snapshot timestamp.
func Extract(ex Extractor, dir string, keys []string, scores map[string]int) (*ExtractResult, error) {
	snap, missing, err := Create(ex, keys, scores)
	if err != nil {
		return nil, err
	}

	stamp := strings.ReplaceAll(snap.Timestamp.Format("20060102T150405.000000"), ".", "-")
	snapPath := filepath.Join(dir, stamp+".json")
	artifactPath := filepath.Join(dir, stamp+".edit"+snap.ArtifactExtension())

	if err := snap.Save(snapPath); err != nil {
		return nil, err
	}
	if err := storage.WriteFileAtomic(artifactPath, []byte(RenderArtifact(snap)), 0o644); err != nil {
		return nil, mmerrors.NewFileError("write", artifactPath, err)
	}

	debug.LogReinject("extracted %d methods to %s (%d missing)", len(snap.Methods), snapPath, len(missing))
	return &ExtractResult{
		SnapshotPath: snapPath,
		ArtifactPath: artifactPath,
		Keys:         snap.OrderedKeys(),
		Missing:      missing,
		Snapshot:     snap,
	}, nil
}

package engine

import (
	"strings"

	"diffusiond/internal/common/fsutil"
)

// SourceKind classifies where a model is loaded from.
type SourceKind string

const (
	// SourcePackaged is a single-file DDUF archive on disk.
	SourcePackaged SourceKind = "packaged_archive"
	// SourceDirectory is a local directory holding pipeline components.
	SourceDirectory SourceKind = "local_directory"
	// SourceRemote is an opaque identifier resolved by the model hub.
	SourceRemote SourceKind = "remote_identifier"
)

// packagedExt is the packaged-archive filename extension (case-insensitive).
const packagedExt = ".dduf"

// ModelSource is the resolved classification of a model path. Determined once
// from the input string and immutable thereafter.
type ModelSource struct {
	Kind SourceKind
	Path string
}

// ResolveSource classifies modelPath. A packaged archive requires both the
// extension match and an existing regular file; an existing directory is a
// local directory; anything else is treated as a remote identifier.
func ResolveSource(modelPath string) ModelSource {
	if strings.HasSuffix(strings.ToLower(modelPath), packagedExt) && fsutil.IsRegularFile(modelPath) {
		return ModelSource{Kind: SourcePackaged, Path: modelPath}
	}
	if fsutil.IsDir(modelPath) {
		return ModelSource{Kind: SourceDirectory, Path: modelPath}
	}
	return ModelSource{Kind: SourceRemote, Path: modelPath}
}

package unistore

import (
	"path"
	"time"
)

// EntryMode describes what a path points at.
type EntryMode uint8

const (
	// ModeUnknown means the backend could not determine the mode.
	ModeUnknown EntryMode = iota
	// ModeFile is a regular object holding bytes.
	ModeFile
	// ModeDir is a directory. Directory paths always end with "/".
	ModeDir
)

// IsFile reports whether the mode is ModeFile.
func (m EntryMode) IsFile() bool { return m == ModeFile }

// IsDir reports whether the mode is ModeDir.
func (m EntryMode) IsDir() bool { return m == ModeDir }

func (m EntryMode) String() string {
	switch m {
	case ModeFile:
		return "file"
	case ModeDir:
		return "dir"
	default:
		return "unknown"
	}
}

// Metadata is an immutable snapshot describing one path at a point in time.
// It is created by Stat or carried on a listing Entry and never mutated
// afterwards. Fields other than Mode and ContentLength are optional; absent
// values are zero.
type Metadata struct {
	// Mode is the entry mode. Defaults to ModeUnknown.
	Mode EntryMode
	// ContentLength is the object size in bytes. Zero when unknown.
	ContentLength int64
	// ContentType is the media type recorded by the backend.
	ContentType string
	// ContentDisposition is the disposition recorded by the backend.
	ContentDisposition string
	// CacheControl is the cache directive recorded by the backend.
	CacheControl string
	// ETag is the backend's entity tag, including any quoting.
	ETag string
	// ContentMD5 is the base64 or hex digest recorded by the backend.
	ContentMD5 string
	// LastModified is the backend's modification timestamp. Zero when
	// unknown.
	LastModified time.Time
}

// Entry is one result of a listing: a backend-root-relative path plus
// whatever metadata the backend returned alongside it. Metadata is nil when
// the backend listing did not include it; call Operator.Stat to fetch a
// complete snapshot.
type Entry struct {
	// Path is relative to the backend root. Directory entries end with "/".
	Path string
	// Metadata is the cached snapshot, if the listing carried one.
	Metadata *Metadata
}

// Name returns the last path segment of the entry.
func (e *Entry) Name() string {
	if e.Path == "" {
		return ""
	}
	p := e.Path
	isDir := p[len(p)-1] == '/'
	if isDir {
		p = p[:len(p)-1]
	}
	name := path.Base(p)
	if isDir {
		name += "/"
	}
	return name
}

// IsDir reports whether the entry names a directory.
func (e *Entry) IsDir() bool {
	return e.Path != "" && e.Path[len(e.Path)-1] == '/'
}

// Package fs provides a local-filesystem unistore backend built on afero.
//
// Registered under the "fs" scheme. Options:
//
//	root — base directory for all paths (required)
//
// Writes are atomic: bytes go to a temp file in the destination directory
// and are renamed into place on Close.
package fs

import (
	"context"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/bleepstore/unistore"
)

const listPageSize = 256

func init() {
	unistore.Register("fs", func(options map[string]string) (unistore.Accessor, error) {
		root, ok := options["root"]
		if !ok || root == "" {
			return nil, unistore.NewError(unistore.KindConfigInvalid, "open", "", "fs backend requires a root option")
		}
		return New(root)
	})
}

// Backend is a filesystem Accessor rooted at one directory.
type Backend struct {
	fs   afero.Fs
	root string
}

// New creates a filesystem backend rooted at root, creating the directory
// if needed.
func New(root string) (*Backend, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, unistore.NewError(unistore.KindConfigInvalid, "open", root, "resolving root").WithCause(err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, unistore.NewError(unistore.KindConfigInvalid, "open", root, "creating root directory").WithCause(err)
	}
	return &Backend{
		fs:   afero.NewBasePathFs(afero.NewOsFs(), absRoot),
		root: absRoot,
	}, nil
}

// NewWithFs creates a backend over a custom afero filesystem. Tests use this
// with afero.NewMemMapFs.
func NewWithFs(f afero.Fs) *Backend {
	return &Backend{fs: f, root: "/"}
}

// Info implements unistore.Accessor.
func (b *Backend) Info() unistore.AccessorInfo {
	return unistore.AccessorInfo{
		Scheme: "fs",
		Root:   strings.TrimSuffix(b.root, "/") + "/",
		Name:   b.root,
		Capability: unistore.Capability{
			Stat: true, Read: true, Write: true, WriteCanAppend: true, WriteCanMulti: true,
			CreateDir: true, Delete: true, Copy: true, Rename: true,
			List: true, ListWithRecursive: true, ListWithLimit: true,
		},
	}
}

// osPath converts a normalized backend path to a filesystem path.
func osPath(p string) string {
	if p == "/" {
		return "."
	}
	return filepath.FromSlash(strings.TrimSuffix(p, "/"))
}

// mapError translates filesystem errors into the unistore taxonomy.
func mapError(op, path string, err error) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return unistore.NewError(unistore.KindNotFound, op, path, "no such file or directory").WithCause(err)
	case os.IsPermission(err):
		return unistore.NewError(unistore.KindPermissionDenied, op, path, "permission denied").WithCause(err)
	case os.IsExist(err):
		return unistore.NewError(unistore.KindAlreadyExists, op, path, "already exists").WithCause(err)
	default:
		return unistore.NewError(unistore.KindUnexpected, op, path, "filesystem error").WithCause(err)
	}
}

// Stat implements unistore.Accessor.
func (b *Backend) Stat(ctx context.Context, path string, args unistore.OpStat) (unistore.Metadata, error) {
	info, err := b.fs.Stat(osPath(path))
	if err != nil {
		return unistore.Metadata{}, mapError(unistore.OpStatName, path, err)
	}

	wantDir := strings.HasSuffix(path, "/")
	if wantDir && !info.IsDir() {
		return unistore.Metadata{}, unistore.NewError(unistore.KindNotADirectory, unistore.OpStatName, path, "path is a file")
	}
	if !wantDir && info.IsDir() {
		return unistore.Metadata{}, unistore.NewError(unistore.KindIsADirectory, unistore.OpStatName, path, "path is a directory")
	}
	return metaFromInfo(info), nil
}

func metaFromInfo(info iofs.FileInfo) unistore.Metadata {
	if info.IsDir() {
		return unistore.Metadata{Mode: unistore.ModeDir, LastModified: info.ModTime()}
	}
	return unistore.Metadata{
		Mode:          unistore.ModeFile,
		ContentLength: info.Size(),
		LastModified:  info.ModTime(),
	}
}

// Read implements unistore.Accessor.
func (b *Backend) Read(ctx context.Context, path string, args unistore.OpRead) (io.ReadCloser, error) {
	f, err := b.fs.Open(osPath(path))
	if err != nil {
		return nil, mapError(unistore.OpReadName, path, err)
	}
	if args.Offset > 0 {
		if _, err := f.Seek(args.Offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, mapError(unistore.OpReadName, path, err)
		}
	}
	if args.Length < 0 {
		return f, nil
	}
	return &limitedFile{Reader: io.LimitReader(f, args.Length), f: f}, nil
}

// limitedFile bounds a ranged read while keeping the file closable.
type limitedFile struct {
	io.Reader
	f afero.File
}

func (l *limitedFile) Close() error { return l.f.Close() }

// Write implements unistore.Accessor.
func (b *Backend) Write(ctx context.Context, path string, args unistore.OpWrite) (io.WriteCloser, error) {
	target := osPath(path)
	if dir := filepath.Dir(target); dir != "." {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, mapError(unistore.OpWriteName, path, err)
		}
	}

	if args.Append {
		f, err := b.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, mapError(unistore.OpWriteName, path, err)
		}
		return f, nil
	}

	tmp := target + ".tmp-" + uuid.NewString()
	f, err := b.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, mapError(unistore.OpWriteName, path, err)
	}
	return &atomicWriter{fs: b.fs, f: f, tmp: tmp, target: target, path: path}, nil
}

// atomicWriter commits on Close by renaming the temp file over the target.
type atomicWriter struct {
	fs     afero.Fs
	f      afero.File
	tmp    string
	target string
	path   string
	closed bool
}

func (w *atomicWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, unistore.NewError(unistore.KindUnexpected, unistore.OpWriteName, w.path, "writer already closed")
	}
	return w.f.Write(p)
}

func (w *atomicWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.f.Close(); err != nil {
		_ = w.fs.Remove(w.tmp)
		return mapError(unistore.OpWriteName, w.path, err)
	}
	if err := w.fs.Rename(w.tmp, w.target); err != nil {
		_ = w.fs.Remove(w.tmp)
		return mapError(unistore.OpWriteName, w.path, err)
	}
	return nil
}

// CreateDir implements unistore.Accessor.
func (b *Backend) CreateDir(ctx context.Context, path string) error {
	if err := b.fs.MkdirAll(osPath(path), 0o755); err != nil {
		return mapError(unistore.OpCreateDirName, path, err)
	}
	return nil
}

// Delete implements unistore.Accessor. Missing paths succeed.
func (b *Backend) Delete(ctx context.Context, path string) error {
	err := b.fs.Remove(osPath(path))
	if err != nil && !os.IsNotExist(err) {
		return mapError(unistore.OpDeleteName, path, err)
	}
	return nil
}

// Copy implements unistore.Accessor.
func (b *Backend) Copy(ctx context.Context, from, to string) error {
	src, err := b.fs.Open(osPath(from))
	if err != nil {
		return mapError(unistore.OpCopyName, from, err)
	}
	defer src.Close()

	if info, err := src.Stat(); err == nil && info.IsDir() {
		return unistore.NewError(unistore.KindIsADirectory, unistore.OpCopyName, from, "source is a directory")
	}

	w, err := b.Write(ctx, to, unistore.OpWrite{})
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return unistore.NewError(unistore.KindUnexpected, unistore.OpCopyName, from, "copying bytes").WithCause(err)
	}
	return w.Close()
}

// Rename implements unistore.Accessor.
func (b *Backend) Rename(ctx context.Context, from, to string) error {
	target := osPath(to)
	if dir := filepath.Dir(target); dir != "." {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return mapError(unistore.OpRenameName, to, err)
		}
	}
	if err := b.fs.Rename(osPath(from), target); err != nil {
		return mapError(unistore.OpRenameName, from, err)
	}
	return nil
}

// List implements unistore.Accessor. The listing snapshot is taken up front,
// so entries keep a stable order for the lifetime of the pager.
func (b *Backend) List(ctx context.Context, path string, args unistore.OpList) (unistore.Pager, error) {
	dir := osPath(path)
	info, err := b.fs.Stat(dir)
	if err != nil {
		return nil, mapError(unistore.OpListName, path, err)
	}
	if !info.IsDir() {
		return nil, unistore.NewError(unistore.KindNotADirectory, unistore.OpListName, path, "path is a file")
	}

	prefix := path
	if prefix == "/" {
		prefix = ""
	}

	var entries []unistore.Entry
	if args.Recursive {
		err = afero.Walk(b.fs, dir, func(p string, info iofs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, rerr := filepath.Rel(dir, p)
			if rerr != nil || rel == "." {
				return rerr
			}
			entryPath := prefix + filepath.ToSlash(rel)
			if info.IsDir() {
				entryPath += "/"
			}
			meta := metaFromInfo(info)
			entries = append(entries, unistore.Entry{Path: entryPath, Metadata: &meta})
			return nil
		})
		if err != nil {
			return nil, mapError(unistore.OpListName, path, err)
		}
	} else {
		infos, err := afero.ReadDir(b.fs, dir)
		if err != nil {
			return nil, mapError(unistore.OpListName, path, err)
		}
		for _, info := range infos {
			entryPath := prefix + info.Name()
			if info.IsDir() {
				entryPath += "/"
			}
			meta := metaFromInfo(info)
			entries = append(entries, unistore.Entry{Path: entryPath, Metadata: &meta})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	if args.Limit > 0 && args.Limit < len(entries) {
		entries = entries[:args.Limit]
	}
	return &fsPager{entries: entries}, nil
}

type fsPager struct {
	entries []unistore.Entry
}

func (p *fsPager) NextPage(ctx context.Context) ([]unistore.Entry, error) {
	if len(p.entries) == 0 {
		return nil, nil
	}
	n := min(listPageSize, len(p.entries))
	page := p.entries[:n]
	p.entries = p.entries[n:]
	return page, nil
}

// Batch implements unistore.Accessor. Not advertised.
func (b *Backend) Batch(ctx context.Context, args unistore.OpBatch) ([]unistore.BatchResult, error) {
	return nil, unistore.NewError(unistore.KindUnsupported, unistore.OpBatchName, "", "fs backend does not batch")
}

// Presign implements unistore.Accessor. Not advertised.
func (b *Backend) Presign(ctx context.Context, path string, args unistore.OpPresign) (*unistore.PresignedRequest, error) {
	return nil, unistore.NewError(unistore.KindUnsupported, unistore.OpPresignName, path, "fs backend cannot presign")
}

var _ unistore.Accessor = (*Backend)(nil)

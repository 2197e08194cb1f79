// Package memory provides an in-memory unistore backend, mainly for tests
// and ephemeral caches. All data lives in process memory and is lost when
// the Backend is garbage collected.
//
// Registered under the "memory" scheme. No options are required.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bleepstore/unistore"
)

// listPageSize is the number of entries per pager page.
const listPageSize = 256

func init() {
	unistore.Register("memory", func(options map[string]string) (unistore.Accessor, error) {
		return New(), nil
	})
}

type object struct {
	data []byte
	meta unistore.Metadata
}

// Backend is an in-memory Accessor. The zero value is not usable; call New.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object
	dirs    map[string]bool
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		objects: make(map[string]*object),
		dirs:    make(map[string]bool),
	}
}

// Info implements unistore.Accessor.
func (b *Backend) Info() unistore.AccessorInfo {
	return unistore.AccessorInfo{
		Scheme: "memory",
		Root:   "/",
		Name:   "memory",
		Capability: unistore.Capability{
			Stat: true, Read: true, Write: true, WriteCanAppend: true, WriteCanMulti: true,
			CreateDir: true, Delete: true, Copy: true, Rename: true,
			List: true, ListWithRecursive: true, ListWithLimit: true,
			Batch: true, BatchDelete: true, BatchMaxOperations: 1000,
		},
	}
}

// Stat implements unistore.Accessor.
func (b *Backend) Stat(ctx context.Context, path string, args unistore.OpStat) (unistore.Metadata, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if strings.HasSuffix(path, "/") {
		if b.dirExistsLocked(path) {
			return unistore.Metadata{Mode: unistore.ModeDir}, nil
		}
		return unistore.Metadata{}, unistore.NewError(unistore.KindNotFound, unistore.OpStatName, path, "no such directory")
	}

	obj, ok := b.objects[path]
	if !ok {
		return unistore.Metadata{}, unistore.NewError(unistore.KindNotFound, unistore.OpStatName, path, "no such object")
	}
	return obj.meta, nil
}

// dirExistsLocked reports whether path is the root, an explicit directory,
// or an implicit parent of any stored object.
func (b *Backend) dirExistsLocked(path string) bool {
	if path == "/" || b.dirs[path] {
		return true
	}
	for p := range b.objects {
		if strings.HasPrefix(p, path) {
			return true
		}
	}
	for p := range b.dirs {
		if strings.HasPrefix(p, path) {
			return true
		}
	}
	return false
}

// Read implements unistore.Accessor.
func (b *Backend) Read(ctx context.Context, path string, args unistore.OpRead) (io.ReadCloser, error) {
	b.mu.RLock()
	obj, ok := b.objects[path]
	b.mu.RUnlock()
	if !ok {
		return nil, unistore.NewError(unistore.KindNotFound, unistore.OpReadName, path, "no such object")
	}

	data := obj.data
	if args.Offset > int64(len(data)) {
		data = nil
	} else {
		data = data[args.Offset:]
	}
	if args.Length >= 0 && args.Length < int64(len(data)) {
		data = data[:args.Length]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Write implements unistore.Accessor. Bytes are staged in a buffer and the
// object is swapped in atomically when the returned writer is closed.
func (b *Backend) Write(ctx context.Context, path string, args unistore.OpWrite) (io.WriteCloser, error) {
	w := &memWriter{backend: b, path: path, args: args}
	if args.Append {
		b.mu.RLock()
		if obj, ok := b.objects[path]; ok {
			w.buf.Write(obj.data)
		}
		b.mu.RUnlock()
	}
	return w, nil
}

type memWriter struct {
	backend *Backend
	path    string
	args    unistore.OpWrite
	buf     bytes.Buffer
	closed  bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, unistore.NewError(unistore.KindUnexpected, unistore.OpWriteName, w.path, "writer already closed")
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	data := make([]byte, w.buf.Len())
	copy(data, w.buf.Bytes())
	sum := md5.Sum(data)

	w.backend.mu.Lock()
	defer w.backend.mu.Unlock()
	w.backend.objects[w.path] = &object{
		data: data,
		meta: unistore.Metadata{
			Mode:               unistore.ModeFile,
			ContentLength:      int64(len(data)),
			ContentType:        w.args.ContentType,
			ContentDisposition: w.args.ContentDisposition,
			CacheControl:       w.args.CacheControl,
			ETag:               fmt.Sprintf("%q", fmt.Sprintf("%x", sum)),
			LastModified:       time.Now(),
		},
	}
	return nil
}

// CreateDir implements unistore.Accessor.
func (b *Backend) CreateDir(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p := path; p != "/" && p != ""; p = parentDir(p) {
		b.dirs[p] = true
	}
	return nil
}

// parentDir returns the parent directory path of a normalized path, with
// its trailing "/".
func parentDir(p string) string {
	p = strings.TrimSuffix(p, "/")
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "/"
	}
	return p[:i+1]
}

// Delete implements unistore.Accessor. Missing paths succeed.
func (b *Backend) Delete(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if strings.HasSuffix(path, "/") {
		delete(b.dirs, path)
		return nil
	}
	delete(b.objects, path)
	return nil
}

// Copy implements unistore.Accessor.
func (b *Backend) Copy(ctx context.Context, from, to string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, ok := b.objects[from]
	if !ok {
		return unistore.NewError(unistore.KindNotFound, unistore.OpCopyName, from, "no such object")
	}
	data := make([]byte, len(src.data))
	copy(data, src.data)
	meta := src.meta
	meta.LastModified = time.Now()
	b.objects[to] = &object{data: data, meta: meta}
	return nil
}

// Rename implements unistore.Accessor.
func (b *Backend) Rename(ctx context.Context, from, to string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, ok := b.objects[from]
	if !ok {
		return unistore.NewError(unistore.KindNotFound, unistore.OpRenameName, from, "no such object")
	}
	b.objects[to] = src
	delete(b.objects, from)
	return nil
}

// List implements unistore.Accessor. The listing is a consistent snapshot
// taken at call time; later writes do not reorder already-returned entries.
func (b *Backend) List(ctx context.Context, path string, args unistore.OpList) (unistore.Pager, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.dirExistsLocked(path) {
		return nil, unistore.NewError(unistore.KindNotFound, unistore.OpListName, path, "no such directory")
	}

	prefix := path
	if prefix == "/" {
		prefix = ""
	}

	seen := make(map[string]unistore.Entry)
	add := func(p string, meta *unistore.Metadata) {
		if !strings.HasPrefix(p, prefix) || p == prefix {
			return
		}
		rest := p[len(prefix):]
		if !args.Recursive {
			// Collapse deeper paths into the direct child directory.
			if i := strings.Index(strings.TrimSuffix(rest, "/"), "/"); i >= 0 {
				p = prefix + rest[:i+1]
				meta = &unistore.Metadata{Mode: unistore.ModeDir}
			}
		}
		if _, ok := seen[p]; !ok {
			seen[p] = unistore.Entry{Path: p, Metadata: meta}
		}
	}

	for p, obj := range b.objects {
		meta := obj.meta
		add(p, &meta)
	}
	for p := range b.dirs {
		add(p, &unistore.Metadata{Mode: unistore.ModeDir})
	}

	entries := make([]unistore.Entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	if args.Limit > 0 && args.Limit < len(entries) {
		entries = entries[:args.Limit]
	}
	return &memPager{entries: entries}, nil
}

type memPager struct {
	entries []unistore.Entry
}

func (p *memPager) NextPage(ctx context.Context) ([]unistore.Entry, error) {
	if len(p.entries) == 0 {
		return nil, nil
	}
	n := min(listPageSize, len(p.entries))
	page := p.entries[:n]
	p.entries = p.entries[n:]
	return page, nil
}

// Batch implements unistore.Accessor. All deletes run under one lock
// acquisition.
func (b *Backend) Batch(ctx context.Context, args unistore.OpBatch) ([]unistore.BatchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	results := make([]unistore.BatchResult, len(args.Delete))
	for i, p := range args.Delete {
		if strings.HasSuffix(p, "/") {
			delete(b.dirs, p)
		} else {
			delete(b.objects, p)
		}
		results[i] = unistore.BatchResult{Path: p}
	}
	return results, nil
}

// Presign implements unistore.Accessor. Memory objects have no reachable
// URL, so this is never advertised and never called through an Operator.
func (b *Backend) Presign(ctx context.Context, path string, args unistore.OpPresign) (*unistore.PresignedRequest, error) {
	return nil, unistore.NewError(unistore.KindUnsupported, unistore.OpPresignName, path, "memory backend cannot presign")
}

var _ unistore.Accessor = (*Backend)(nil)

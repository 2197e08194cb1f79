// Package bolt provides a unistore backend stored in a single bbolt file.
//
// Registered under the "bolt" scheme. Options:
//
//	path — database file (required)
//
// Object bytes live in one bucket keyed by path; metadata records live in a
// sibling bucket as JSON. Directories are explicit keys with a trailing
// slash. Every mutation is one bbolt transaction, so writes are atomic and
// batch deletes are all-or-nothing at the storage level.
package bolt

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/bleepstore/unistore"
)

var (
	bucketObjects = []byte("objects")
	bucketMeta    = []byte("meta")
)

const listPageSize = 256

func init() {
	unistore.Register("bolt", func(options map[string]string) (unistore.Accessor, error) {
		path, ok := options["path"]
		if !ok || path == "" {
			return nil, unistore.NewError(unistore.KindConfigInvalid, "open", "", "bolt backend requires a path option")
		}
		return Open(path)
	})
}

// Backend is a bbolt-backed Accessor.
type Backend struct {
	db   *bbolt.DB
	name string
}

// metaRecord is the stored form of object metadata.
type metaRecord struct {
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Open opens or creates the database file at path.
func Open(path string) (*Backend, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, unistore.NewError(unistore.KindConfigInvalid, "open", path, "opening database").WithCause(err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketObjects); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, unistore.NewError(unistore.KindUnexpected, "open", path, "creating buckets").WithCause(err)
	}
	return &Backend{db: db, name: path}, nil
}

// Close closes the underlying database.
func (b *Backend) Close() error { return b.db.Close() }

// Info implements unistore.Accessor.
func (b *Backend) Info() unistore.AccessorInfo {
	return unistore.AccessorInfo{
		Scheme: "bolt",
		Root:   "/",
		Name:   b.name,
		Capability: unistore.Capability{
			Stat: true, Read: true, Write: true, WriteCanMulti: true,
			CreateDir: true, Delete: true, Copy: true, Rename: true,
			List: true, ListWithRecursive: true, ListWithLimit: true,
			Batch: true, BatchDelete: true, BatchMaxOperations: 1000,
		},
	}
}

// Stat implements unistore.Accessor.
func (b *Backend) Stat(ctx context.Context, path string, args unistore.OpStat) (unistore.Metadata, error) {
	if path == "/" {
		return unistore.Metadata{Mode: unistore.ModeDir}, nil
	}

	var meta unistore.Metadata
	err := b.db.View(func(tx *bbolt.Tx) error {
		objects := tx.Bucket(bucketObjects)

		if strings.HasSuffix(path, "/") {
			if objects.Get([]byte(path)) != nil || hasPrefixLocked(objects, path) {
				meta = unistore.Metadata{Mode: unistore.ModeDir}
				return nil
			}
			return unistore.NewError(unistore.KindNotFound, unistore.OpStatName, path, "directory not found")
		}

		data := objects.Get([]byte(path))
		if data == nil {
			return unistore.NewError(unistore.KindNotFound, unistore.OpStatName, path, "object not found")
		}
		meta = unistore.Metadata{Mode: unistore.ModeFile, ContentLength: int64(len(data))}
		if raw := tx.Bucket(bucketMeta).Get([]byte(path)); raw != nil {
			var rec metaRecord
			if err := json.Unmarshal(raw, &rec); err == nil {
				meta.ContentType = rec.ContentType
				meta.ETag = rec.ETag
				meta.LastModified = rec.LastModified
			}
		}
		return nil
	})
	return meta, err
}

// hasPrefixLocked reports whether any key starts with prefix. Must run
// inside a transaction.
func hasPrefixLocked(bkt *bbolt.Bucket, prefix string) bool {
	c := bkt.Cursor()
	k, _ := c.Seek([]byte(prefix))
	return k != nil && bytes.HasPrefix(k, []byte(prefix))
}

// Read implements unistore.Accessor.
func (b *Backend) Read(ctx context.Context, path string, args unistore.OpRead) (io.ReadCloser, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketObjects).Get([]byte(path))
		if raw == nil {
			return unistore.NewError(unistore.KindNotFound, unistore.OpReadName, path, "object not found")
		}
		// The slice is only valid inside the transaction.
		data = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		return nil, err
	}

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

// Write implements unistore.Accessor. Bytes are staged in memory and
// committed in one transaction on Close.
func (b *Backend) Write(ctx context.Context, path string, args unistore.OpWrite) (io.WriteCloser, error) {
	return &boltWriter{backend: b, path: path, args: args}, nil
}

type boltWriter struct {
	backend *Backend
	path    string
	args    unistore.OpWrite
	buf     bytes.Buffer
	closed  bool
}

func (w *boltWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, unistore.NewError(unistore.KindUnexpected, unistore.OpWriteName, w.path, "writer already closed")
	}
	return w.buf.Write(p)
}

func (w *boltWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	data := w.buf.Bytes()
	sum := md5.Sum(data)
	rec := metaRecord{
		ContentType:  w.args.ContentType,
		ETag:         `"` + hex.EncodeToString(sum[:]) + `"`,
		LastModified: time.Now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return unistore.NewError(unistore.KindUnexpected, unistore.OpWriteName, w.path, "encoding metadata").WithCause(err)
	}

	err = w.backend.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketObjects).Put([]byte(w.path), data); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte(w.path), raw)
	})
	if err != nil {
		return unistore.NewError(unistore.KindUnexpected, unistore.OpWriteName, w.path, "committing object").WithCause(err)
	}
	return nil
}

// CreateDir implements unistore.Accessor.
func (b *Backend) CreateDir(ctx context.Context, path string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		objects := tx.Bucket(bucketObjects)
		for p := path; p != "/" && p != ""; p = parentDir(p) {
			if err := objects.Put([]byte(p), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unistore.NewError(unistore.KindUnexpected, unistore.OpCreateDirName, path, "creating directory").WithCause(err)
	}
	return nil
}

// parentDir returns the parent directory path, with trailing slash, or "/".
func parentDir(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return "/"
	}
	return trimmed[:idx+1]
}

// Delete implements unistore.Accessor. Missing paths succeed.
func (b *Backend) Delete(ctx context.Context, path string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketObjects).Delete([]byte(path)); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Delete([]byte(path))
	})
	if err != nil {
		return unistore.NewError(unistore.KindUnexpected, unistore.OpDeleteName, path, "deleting object").WithCause(err)
	}
	return nil
}

// Copy implements unistore.Accessor.
func (b *Backend) Copy(ctx context.Context, from, to string) error {
	return b.relocate(unistore.OpCopyName, from, to, false)
}

// Rename implements unistore.Accessor.
func (b *Backend) Rename(ctx context.Context, from, to string) error {
	return b.relocate(unistore.OpRenameName, from, to, true)
}

func (b *Backend) relocate(op, from, to string, removeSource bool) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		objects := tx.Bucket(bucketObjects)
		meta := tx.Bucket(bucketMeta)

		data := objects.Get([]byte(from))
		if data == nil {
			return unistore.NewError(unistore.KindNotFound, op, from, "source not found")
		}
		if err := objects.Put([]byte(to), append([]byte(nil), data...)); err != nil {
			return err
		}
		if raw := meta.Get([]byte(from)); raw != nil {
			if err := meta.Put([]byte(to), append([]byte(nil), raw...)); err != nil {
				return err
			}
		}
		if removeSource {
			if err := objects.Delete([]byte(from)); err != nil {
				return err
			}
			return meta.Delete([]byte(from))
		}
		return nil
	})
}

// List implements unistore.Accessor. The result set is snapshotted in one
// read transaction, then paged out.
func (b *Backend) List(ctx context.Context, path string, args unistore.OpList) (unistore.Pager, error) {
	prefix := path
	if prefix == "/" {
		prefix = ""
	}

	var entries []unistore.Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		objects := tx.Bucket(bucketObjects)

		if prefix != "" && objects.Get([]byte(path)) == nil && !hasPrefixLocked(objects, prefix) {
			return unistore.NewError(unistore.KindNotFound, unistore.OpListName, path, "directory not found")
		}

		seen := make(map[string]bool)
		c := objects.Cursor()
		for k, v := c.Seek([]byte(prefix)); k != nil && bytes.HasPrefix(k, []byte(prefix)); k, v = c.Next() {
			key := string(k)
			if key == path {
				continue
			}
			rest := key[len(prefix):]

			if !args.Recursive {
				// Collapse anything below a direct child into that child dir.
				if idx := strings.IndexByte(strings.TrimSuffix(rest, "/"), '/'); idx >= 0 {
					child := prefix + rest[:idx+1]
					if !seen[child] {
						seen[child] = true
						entries = append(entries, unistore.Entry{Path: child, Metadata: &unistore.Metadata{Mode: unistore.ModeDir}})
					}
					continue
				}
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			entries = append(entries, entryForKey(tx, key, v))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	if args.Limit > 0 && args.Limit < len(entries) {
		entries = entries[:args.Limit]
	}
	return &boltPager{entries: entries}, nil
}

func entryForKey(tx *bbolt.Tx, key string, value []byte) unistore.Entry {
	if strings.HasSuffix(key, "/") {
		return unistore.Entry{Path: key, Metadata: &unistore.Metadata{Mode: unistore.ModeDir}}
	}
	meta := unistore.Metadata{Mode: unistore.ModeFile, ContentLength: int64(len(value))}
	if raw := tx.Bucket(bucketMeta).Get([]byte(key)); raw != nil {
		var rec metaRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			meta.ContentType = rec.ContentType
			meta.ETag = rec.ETag
			meta.LastModified = rec.LastModified
		}
	}
	return unistore.Entry{Path: key, Metadata: &meta}
}

type boltPager struct {
	entries []unistore.Entry
}

func (p *boltPager) NextPage(ctx context.Context) ([]unistore.Entry, error) {
	if len(p.entries) == 0 {
		return nil, nil
	}
	n := min(listPageSize, len(p.entries))
	page := p.entries[:n]
	p.entries = p.entries[n:]
	return page, nil
}

// Batch implements unistore.Accessor. All deletes run in one transaction.
func (b *Backend) Batch(ctx context.Context, args unistore.OpBatch) ([]unistore.BatchResult, error) {
	results := make([]unistore.BatchResult, 0, len(args.Delete))
	err := b.db.Update(func(tx *bbolt.Tx) error {
		objects := tx.Bucket(bucketObjects)
		meta := tx.Bucket(bucketMeta)
		for _, path := range args.Delete {
			if err := objects.Delete([]byte(path)); err != nil {
				return err
			}
			if err := meta.Delete([]byte(path)); err != nil {
				return err
			}
			results = append(results, unistore.BatchResult{Path: path})
		}
		return nil
	})
	if err != nil {
		return nil, unistore.NewError(unistore.KindUnexpected, unistore.OpBatchName, "", "batch delete").WithCause(err)
	}
	return results, nil
}

// Presign implements unistore.Accessor. Not advertised.
func (b *Backend) Presign(ctx context.Context, path string, args unistore.OpPresign) (*unistore.PresignedRequest, error) {
	return nil, unistore.NewError(unistore.KindUnsupported, unistore.OpPresignName, path, "bolt backend cannot presign")
}

var _ unistore.Accessor = (*Backend)(nil)

package unistore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"
)

// Operator is the client-facing facade over one layered Accessor chain.
//
// Every public operation validates the target path, consults the chain's
// Capability, and only then delegates to the chain — an unsupported or
// malformed call never reaches the backend. Once built, an Operator is
// immutable and safe for unlimited concurrent callers.
//
// All operations are synchronous and context-aware; run them in goroutines
// for non-blocking use.
type Operator struct {
	chain Accessor
	info  AccessorInfo
}

// NewOperator builds an Operator over the given Accessor, wrapped by the
// given layers. The first layer becomes outermost. Layers cannot be added
// after construction.
func NewOperator(acc Accessor, layers ...Layer) *Operator {
	chain := applyLayers(acc, layers)
	return &Operator{chain: chain, info: chain.Info()}
}

// Info returns the chain's identity and capability snapshot.
func (op *Operator) Info() AccessorInfo { return op.info }

// Layer returns a new Operator with l wrapped around the current chain as
// the new outermost layer. The receiver is unchanged.
func (op *Operator) Layer(l Layer) *Operator {
	chain := l.Apply(op.chain)
	return &Operator{chain: chain, info: chain.Info()}
}

// Stat returns metadata for the path. It always consults the backend, never
// a cache, and fails with NotFound if the path is absent.
func (op *Operator) Stat(ctx context.Context, path string) (Metadata, error) {
	path, err := cleanAnyPath(OpStatName, path)
	if err != nil {
		return Metadata{}, err
	}
	if !op.info.Capability.Stat {
		return Metadata{}, NewError(KindUnsupported, OpStatName, path, "backend does not support stat")
	}
	return op.chain.Stat(ctx, path, OpStat{})
}

// Exists reports whether the path exists.
func (op *Operator) Exists(ctx context.Context, path string) (bool, error) {
	_, err := op.Stat(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Read returns the full content of the file at path.
func (op *Operator) Read(ctx context.Context, path string) ([]byte, error) {
	return op.ReadRange(ctx, path, 0, -1)
}

// ReadRange returns length bytes starting at offset. A negative length reads
// to the end.
func (op *Operator) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	path, err := validatePath(OpReadName, path, false)
	if err != nil {
		return nil, err
	}
	if !op.info.Capability.Read {
		return nil, NewError(KindUnsupported, OpReadName, path, "backend does not support read")
	}
	if offset < 0 {
		return nil, Errorf(KindConfigInvalid, OpReadName, path, "negative offset %d", offset)
	}

	rc, err := op.chain.Read(ctx, path, OpRead{Offset: offset, Length: length})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, NewError(KindUnexpected, OpReadName, path, "reading stream").WithCause(err)
	}
	return buf.Bytes(), nil
}

// Reader opens a streaming reader over the file at path. The returned Reader
// supports Seek when the backend can report the object size.
func (op *Operator) Reader(ctx context.Context, path string) (*Reader, error) {
	path, err := validatePath(OpReadName, path, false)
	if err != nil {
		return nil, err
	}
	if !op.info.Capability.Read {
		return nil, NewError(KindUnsupported, OpReadName, path, "backend does not support read")
	}

	size := int64(-1)
	if op.info.Capability.Stat {
		meta, err := op.chain.Stat(ctx, path, OpStat{})
		if err != nil {
			return nil, err
		}
		size = meta.ContentLength
	}
	return newReader(ctx, op.chain, path, size), nil
}

// Write stores data at path, replacing any existing content unless
// WithAppend is given. The write is all-or-nothing: on error the caller
// never observes a partial object.
func (op *Operator) Write(ctx context.Context, path string, data []byte, opts ...WriteOption) error {
	w, err := op.Writer(ctx, path, opts...)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

// Writer opens a streaming writer for path. The object is committed only
// when Close returns nil; an unclosed writer leaves the final state
// backend-defined, so Close is mandatory for durability.
func (op *Operator) Writer(ctx context.Context, path string, opts ...WriteOption) (*Writer, error) {
	path, err := validatePath(OpWriteName, path, false)
	if err != nil {
		return nil, err
	}

	var args OpWrite
	for _, o := range opts {
		o(&args)
	}
	if err := op.checkWriteArgs(path, args); err != nil {
		return nil, err
	}

	wc, err := op.chain.Write(ctx, path, args)
	if err != nil {
		return nil, err
	}
	return newWriter(wc, args.ChunkSize), nil
}

func (op *Operator) checkWriteArgs(path string, args OpWrite) error {
	c := op.info.Capability
	if !c.Write {
		return NewError(KindUnsupported, OpWriteName, path, "backend does not support write")
	}
	if args.Append && !c.WriteCanAppend {
		return NewError(KindUnsupported, OpWriteName, path, "backend does not support append")
	}
	if args.ChunkSize > 0 {
		if !c.WriteCanMulti {
			return NewError(KindUnsupported, OpWriteName, path, "backend does not support chunked writes")
		}
		if c.WriteMultiMinSize > 0 && args.ChunkSize < c.WriteMultiMinSize {
			return Errorf(KindConfigInvalid, OpWriteName, path,
				"chunk size %d below minimum %d", args.ChunkSize, c.WriteMultiMinSize)
		}
		if c.WriteMultiMaxSize > 0 && args.ChunkSize > c.WriteMultiMaxSize {
			return Errorf(KindConfigInvalid, OpWriteName, path,
				"chunk size %d above maximum %d", args.ChunkSize, c.WriteMultiMaxSize)
		}
		if c.WriteMultiAlignSize > 0 && args.ChunkSize%c.WriteMultiAlignSize != 0 {
			return Errorf(KindConfigInvalid, OpWriteName, path,
				"chunk size %d not aligned to %d", args.ChunkSize, c.WriteMultiAlignSize)
		}
	}
	return nil
}

// CreateDir creates the directory at path, with any missing parents. The
// path must end with "/".
func (op *Operator) CreateDir(ctx context.Context, path string) error {
	path, err := validatePath(OpCreateDirName, path, true)
	if err != nil {
		return err
	}
	if !op.info.Capability.CreateDir {
		return NewError(KindUnsupported, OpCreateDirName, path, "backend does not support create_dir")
	}
	return op.chain.CreateDir(ctx, path)
}

// Delete removes the path. Deleting a path that does not exist succeeds.
func (op *Operator) Delete(ctx context.Context, path string) error {
	path, err := cleanAnyPath(OpDeleteName, path)
	if err != nil {
		return err
	}
	if !op.info.Capability.Delete {
		return NewError(KindUnsupported, OpDeleteName, path, "backend does not support delete")
	}
	return op.chain.Delete(ctx, path)
}

// Copy duplicates the file at from to to, overwriting any existing
// destination and creating missing parents. Copying a path onto itself is a
// no-op.
func (op *Operator) Copy(ctx context.Context, from, to string) error {
	from, err := validatePath(OpCopyName, from, false)
	if err != nil {
		return err
	}
	to, err = validatePath(OpCopyName, to, false)
	if err != nil {
		return err
	}
	if !op.info.Capability.Copy {
		return NewError(KindUnsupported, OpCopyName, from, "backend does not support copy")
	}
	if from == to {
		return nil
	}
	return op.chain.Copy(ctx, from, to)
}

// Rename moves the file at from to to, overwriting any existing destination
// and creating missing parents. Renaming a path onto itself fails with
// IsSameFile.
func (op *Operator) Rename(ctx context.Context, from, to string) error {
	from, err := validatePath(OpRenameName, from, false)
	if err != nil {
		return err
	}
	to, err = validatePath(OpRenameName, to, false)
	if err != nil {
		return err
	}
	if !op.info.Capability.Rename {
		return NewError(KindUnsupported, OpRenameName, from, "backend does not support rename")
	}
	if from == to {
		return NewError(KindIsSameFile, OpRenameName, from, "source and destination are the same")
	}
	return op.chain.Rename(ctx, from, to)
}

// Remove deletes many paths. When the backend advertises batch deletes the
// paths go out in batch calls of at most BatchMaxOperations; otherwise they
// are deleted one by one. Either way removal continues past individual
// failures and the joined errors are returned at the end.
func (op *Operator) Remove(ctx context.Context, paths []string) error {
	if !op.info.Capability.Delete {
		return NewError(KindUnsupported, OpDeleteName, "", "backend does not support delete")
	}

	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		p, err := cleanAnyPath(OpDeleteName, p)
		if err != nil {
			return err
		}
		cleaned = append(cleaned, p)
	}

	c := op.info.Capability
	if c.Batch && c.BatchDelete {
		return op.removeBatch(ctx, cleaned)
	}

	var errs []error
	for _, p := range cleaned {
		if err := op.chain.Delete(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (op *Operator) removeBatch(ctx context.Context, paths []string) error {
	max := op.info.Capability.BatchMaxOperations
	if max <= 0 {
		max = len(paths)
	}

	var errs []error
	for len(paths) > 0 {
		n := min(max, len(paths))
		results, err := op.chain.Batch(ctx, OpBatch{Delete: paths[:n]})
		if err != nil {
			errs = append(errs, err)
		} else {
			for _, r := range results {
				if r.Err != nil {
					errs = append(errs, r.Err)
				}
			}
		}
		paths = paths[n:]
	}
	return errors.Join(errs...)
}

// RemoveAll deletes the directory at path and everything under it. A missing
// directory succeeds.
func (op *Operator) RemoveAll(ctx context.Context, path string) error {
	path, err := validatePath(OpDeleteName, path, true)
	if err != nil {
		return err
	}
	c := op.info.Capability
	if !c.Delete {
		return NewError(KindUnsupported, OpDeleteName, path, "backend does not support delete")
	}
	if !c.List || !c.ListWithRecursive {
		return NewError(KindUnsupported, OpDeleteName, path, "backend does not support recursive listing")
	}

	lister, err := op.chain.List(ctx, path, OpList{Recursive: true})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	var files, dirs []string
	l := newLister(lister, 0)
	defer l.Close()
	for {
		entry, err := l.Next(ctx)
		if err != nil {
			return err
		}
		if entry == nil {
			break
		}
		if entry.IsDir() {
			dirs = append(dirs, entry.Path)
		} else {
			files = append(files, entry.Path)
		}
	}

	// Children before parents.
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], "/") > strings.Count(dirs[j], "/")
	})

	if err := op.Remove(ctx, files); err != nil {
		return err
	}
	var errs []error
	for _, d := range dirs {
		if err := op.chain.Delete(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	if path != "/" {
		if err := op.chain.Delete(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List opens a lazy enumeration of the directory at path. The path must end
// with "/". Entries come back in backend order; the order is stable for the
// lifetime of the returned Lister.
func (op *Operator) List(ctx context.Context, path string, opts ...ListOption) (*Lister, error) {
	path, err := validatePath(OpListName, path, true)
	if err != nil {
		return nil, err
	}

	var args OpList
	for _, o := range opts {
		o(&args)
	}

	c := op.info.Capability
	if !c.List {
		return nil, NewError(KindUnsupported, OpListName, path, "backend does not support list")
	}
	if args.Recursive && !c.ListWithRecursive {
		return nil, NewError(KindUnsupported, OpListName, path, "backend does not support recursive listing")
	}
	if args.Limit > 0 && !c.ListWithLimit {
		return nil, NewError(KindUnsupported, OpListName, path, "backend does not support limited listing")
	}
	if args.Limit < 0 {
		return nil, Errorf(KindConfigInvalid, OpListName, path, "negative limit %d", args.Limit)
	}

	pager, err := op.chain.List(ctx, path, args)
	if err != nil {
		return nil, err
	}
	return newLister(pager, args.Limit), nil
}

// Scan lists the directory at path recursively.
func (op *Operator) Scan(ctx context.Context, path string, opts ...ListOption) (*Lister, error) {
	return op.List(ctx, path, append(opts, WithRecursive())...)
}

// PresignRead builds a presigned request authorizing a read of path.
func (op *Operator) PresignRead(ctx context.Context, path string, expire time.Duration) (*PresignedRequest, error) {
	return op.presign(ctx, path, PresignRead, expire)
}

// PresignWrite builds a presigned request authorizing an overwrite of path.
func (op *Operator) PresignWrite(ctx context.Context, path string, expire time.Duration) (*PresignedRequest, error) {
	return op.presign(ctx, path, PresignWrite, expire)
}

// PresignStat builds a presigned request authorizing a metadata lookup of
// path.
func (op *Operator) PresignStat(ctx context.Context, path string, expire time.Duration) (*PresignedRequest, error) {
	return op.presign(ctx, path, PresignStat, expire)
}

func (op *Operator) presign(ctx context.Context, path string, o PresignOperation, expire time.Duration) (*PresignedRequest, error) {
	path, err := validatePath(OpPresignName, path, false)
	if err != nil {
		return nil, err
	}

	c := op.info.Capability
	supported := c.Presign
	switch o {
	case PresignRead:
		supported = supported && c.PresignRead
	case PresignWrite:
		supported = supported && c.PresignWrite
	case PresignStat:
		supported = supported && c.PresignStat
	}
	if !supported {
		return nil, NewError(KindUnsupported, o.String(), path, "backend does not support presign")
	}
	if expire <= 0 {
		return nil, Errorf(KindConfigInvalid, o.String(), path, "expire must be positive, got %s", expire)
	}
	return op.chain.Presign(ctx, path, OpPresign{Operation: o, Expire: expire})
}

// Check probes backend connectivity with a harmless listing of the root and
// surfaces any error. A missing root counts as healthy.
func (op *Operator) Check(ctx context.Context) error {
	if !op.info.Capability.List {
		return nil
	}
	lister, err := op.List(ctx, "/")
	if err == nil {
		defer lister.Close()
		_, err = lister.Next(ctx)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

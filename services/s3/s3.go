// Package s3 provides a unistore backend for Amazon S3 and S3-compatible
// object stores, built on the AWS SDK for Go v2.
//
// Registered under the "s3" scheme. Options:
//
//	bucket            — bucket name (required)
//	region            — AWS region (required unless resolvable from env)
//	root              — key prefix for all paths
//	endpoint          — custom endpoint URL (MinIO, LocalStack, ...)
//	use_path_style    — "true" for path-style addressing
//	access_key_id     — static credential override
//	secret_access_key — static credential override
//
// Credentials are resolved via the standard AWS credential chain unless the
// static overrides are set. Directories are zero-byte marker objects whose
// keys end in a slash, the usual S3 console convention.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/bleepstore/unistore"
)

// defaultPartSize is the buffer threshold before a write turns into a
// multipart upload. S3 requires every part except the last to be at least
// 5 MiB.
const (
	minPartSize     = 5 * 1024 * 1024
	defaultPartSize = 8 * 1024 * 1024
	maxPartSize     = 5 * 1024 * 1024 * 1024
	maxBatchDelete  = 1000
)

func init() {
	unistore.Register("s3", func(options map[string]string) (unistore.Accessor, error) {
		return New(context.Background(), options)
	})
}

// S3API is the subset of the AWS S3 client used by this backend. Tests
// substitute a mock implementation.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// PresignAPI is the subset of the S3 presign client used by this backend.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignHeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Backend is an S3-backed Accessor.
type Backend struct {
	client  S3API
	presign PresignAPI
	bucket  string
	region  string
	prefix  string
}

// New creates an S3 backend from string options, resolving credentials via
// the standard AWS chain.
func New(ctx context.Context, options map[string]string) (*Backend, error) {
	bucket := options["bucket"]
	if bucket == "" {
		return nil, unistore.NewError(unistore.KindConfigInvalid, "open", "", "s3 backend requires a bucket option")
	}
	region := options["region"]

	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if id, secret := options["access_key_id"], options["secret_access_key"]; id != "" && secret != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, secret, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, unistore.NewError(unistore.KindConfigInvalid, "open", "", "loading AWS config").WithCause(err)
	}

	var s3Opts []func(*s3.Options)
	if endpoint := options["endpoint"]; endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(endpoint) })
	}
	if options["use_path_style"] == "true" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	client := s3.NewFromConfig(cfg, s3Opts...)
	return NewWithClient(client, s3.NewPresignClient(client), bucket, region, options["root"]), nil
}

// NewWithClient creates a backend with pre-configured clients. Tests use
// this with mocks.
func NewWithClient(client S3API, presign PresignAPI, bucket, region, root string) *Backend {
	prefix := strings.Trim(root, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Backend{
		client:  client,
		presign: presign,
		bucket:  bucket,
		region:  region,
		prefix:  prefix,
	}
}

// key maps a normalized path to an upstream object key.
func (b *Backend) key(path string) string {
	if path == "/" {
		return b.prefix
	}
	return b.prefix + path
}

// Info implements unistore.Accessor.
func (b *Backend) Info() unistore.AccessorInfo {
	return unistore.AccessorInfo{
		Scheme: "s3",
		Root:   "/" + b.prefix,
		Name:   b.bucket,
		Capability: unistore.Capability{
			Stat: true, Read: true, Write: true, WriteCanMulti: true,
			WriteMultiMinSize: minPartSize, WriteMultiMaxSize: maxPartSize,
			CreateDir: true, Delete: true, Copy: true,
			List: true, ListWithRecursive: true, ListWithLimit: true,
			Presign: true, PresignRead: true, PresignWrite: true, PresignStat: true,
			Batch: true, BatchDelete: true, BatchMaxOperations: maxBatchDelete,
		},
	}
}

// Stat implements unistore.Accessor. Directory paths resolve against either
// an explicit marker object or any object below the prefix.
func (b *Backend) Stat(ctx context.Context, path string, args unistore.OpStat) (unistore.Metadata, error) {
	if path == "/" {
		return unistore.Metadata{Mode: unistore.ModeDir}, nil
	}

	resp, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
	})
	if err == nil {
		if strings.HasSuffix(path, "/") {
			return unistore.Metadata{Mode: unistore.ModeDir, LastModified: aws.ToTime(resp.LastModified)}, nil
		}
		return unistore.Metadata{
			Mode:               unistore.ModeFile,
			ContentLength:      aws.ToInt64(resp.ContentLength),
			ContentType:        aws.ToString(resp.ContentType),
			ContentDisposition: aws.ToString(resp.ContentDisposition),
			CacheControl:       aws.ToString(resp.CacheControl),
			ETag:               aws.ToString(resp.ETag),
			LastModified:       aws.ToTime(resp.LastModified),
		}, nil
	}
	if !isNotFound(err) {
		return unistore.Metadata{}, mapError(unistore.OpStatName, path, err)
	}

	// No marker object. A directory still exists if anything lives under it.
	if strings.HasSuffix(path, "/") {
		list, lerr := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(b.bucket),
			Prefix:  aws.String(b.key(path)),
			MaxKeys: aws.Int32(1),
		})
		if lerr != nil {
			return unistore.Metadata{}, mapError(unistore.OpStatName, path, lerr)
		}
		if aws.ToInt32(list.KeyCount) > 0 {
			return unistore.Metadata{Mode: unistore.ModeDir}, nil
		}
	}
	return unistore.Metadata{}, unistore.NewError(unistore.KindNotFound, unistore.OpStatName, path, "object not found")
}

// Read implements unistore.Accessor.
func (b *Backend) Read(ctx context.Context, path string, args unistore.OpRead) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
	}
	if r := rangeHeader(args.Offset, args.Length); r != "" {
		input.Range = aws.String(r)
	}

	resp, err := b.client.GetObject(ctx, input)
	if err != nil {
		return nil, mapError(unistore.OpReadName, path, err)
	}
	return resp.Body, nil
}

// rangeHeader renders an HTTP Range header for the requested window, or ""
// for a full read.
func rangeHeader(offset, length int64) string {
	switch {
	case offset == 0 && length < 0:
		return ""
	case length < 0:
		return fmt.Sprintf("bytes=%d-", offset)
	default:
		return fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	}
}

// Write implements unistore.Accessor. Small objects go up as one PutObject;
// once the staged bytes pass the part size the writer switches to a
// multipart upload, aborted on failure.
func (b *Backend) Write(ctx context.Context, path string, args unistore.OpWrite) (io.WriteCloser, error) {
	partSize := args.ChunkSize
	if partSize <= 0 {
		partSize = defaultPartSize
	}
	return &s3Writer{
		ctx:      ctx,
		backend:  b,
		path:     path,
		key:      b.key(path),
		args:     args,
		partSize: partSize,
	}, nil
}

type s3Writer struct {
	ctx      context.Context
	backend  *Backend
	path     string
	key      string
	args     unistore.OpWrite
	partSize int64

	buf      bytes.Buffer
	uploadID string
	parts    []types.CompletedPart
	closed   bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, unistore.NewError(unistore.KindUnexpected, unistore.OpWriteName, w.path, "writer already closed")
	}
	n, _ := w.buf.Write(p)
	for int64(w.buf.Len()) >= w.partSize {
		if err := w.flushPart(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// flushPart uploads one full part from the buffer, starting the multipart
// upload on first use.
func (w *s3Writer) flushPart() error {
	if w.uploadID == "" {
		input := &s3.CreateMultipartUploadInput{
			Bucket: aws.String(w.backend.bucket),
			Key:    aws.String(w.key),
		}
		applyWriteArgs(&input.ContentType, &input.ContentDisposition, &input.CacheControl, w.args)
		resp, err := w.backend.client.CreateMultipartUpload(w.ctx, input)
		if err != nil {
			return mapError(unistore.OpWriteName, w.path, err)
		}
		w.uploadID = aws.ToString(resp.UploadId)
	}

	part := w.buf.Next(int(w.partSize))
	partNumber := int32(len(w.parts) + 1)
	resp, err := w.backend.client.UploadPart(w.ctx, &s3.UploadPartInput{
		Bucket:     aws.String(w.backend.bucket),
		Key:        aws.String(w.key),
		UploadId:   aws.String(w.uploadID),
		PartNumber: aws.Int32(partNumber),
		Body:       bytes.NewReader(part),
	})
	if err != nil {
		w.abort()
		return mapError(unistore.OpWriteName, w.path, err)
	}
	w.parts = append(w.parts, types.CompletedPart{
		ETag:       resp.ETag,
		PartNumber: aws.Int32(partNumber),
	})
	return nil
}

func (w *s3Writer) abort() {
	if w.uploadID == "" {
		return
	}
	_, _ = w.backend.client.AbortMultipartUpload(w.ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(w.backend.bucket),
		Key:      aws.String(w.key),
		UploadId: aws.String(w.uploadID),
	})
	w.uploadID = ""
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.uploadID == "" {
		input := &s3.PutObjectInput{
			Bucket:        aws.String(w.backend.bucket),
			Key:           aws.String(w.key),
			Body:          bytes.NewReader(w.buf.Bytes()),
			ContentLength: aws.Int64(int64(w.buf.Len())),
		}
		applyWriteArgs(&input.ContentType, &input.ContentDisposition, &input.CacheControl, w.args)
		if _, err := w.backend.client.PutObject(w.ctx, input); err != nil {
			return mapError(unistore.OpWriteName, w.path, err)
		}
		return nil
	}

	// Remainder becomes the final part, which may be under the minimum.
	if w.buf.Len() > 0 {
		save := w.partSize
		w.partSize = int64(w.buf.Len())
		err := w.flushPart()
		w.partSize = save
		if err != nil {
			return err
		}
	}

	_, err := w.backend.client.CompleteMultipartUpload(w.ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(w.backend.bucket),
		Key:             aws.String(w.key),
		UploadId:        aws.String(w.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: w.parts},
	})
	if err != nil {
		w.abort()
		return mapError(unistore.OpWriteName, w.path, err)
	}
	return nil
}

func applyWriteArgs(contentType, contentDisposition, cacheControl **string, args unistore.OpWrite) {
	if args.ContentType != "" {
		*contentType = aws.String(args.ContentType)
	}
	if args.ContentDisposition != "" {
		*contentDisposition = aws.String(args.ContentDisposition)
	}
	if args.CacheControl != "" {
		*cacheControl = aws.String(args.CacheControl)
	}
}

// CreateDir implements unistore.Accessor by writing a zero-byte marker.
func (b *Backend) CreateDir(ctx context.Context, path string) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.key(path)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return mapError(unistore.OpCreateDirName, path, err)
	}
	return nil
}

// Delete implements unistore.Accessor. S3 DeleteObject is already
// idempotent on missing keys.
func (b *Backend) Delete(ctx context.Context, path string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
	})
	if err != nil {
		return mapError(unistore.OpDeleteName, path, err)
	}
	return nil
}

// Copy implements unistore.Accessor using server-side copy.
func (b *Backend) Copy(ctx context.Context, from, to string) error {
	source := b.bucket + "/" + b.key(from)
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(b.key(to)),
		CopySource: aws.String(url.PathEscape(source)),
	})
	if err != nil {
		return mapError(unistore.OpCopyName, from, err)
	}
	return nil
}

// Rename implements unistore.Accessor. S3 has no native rename; the
// capability stays off so callers are routed through Copy + Delete.
func (b *Backend) Rename(ctx context.Context, from, to string) error {
	return unistore.NewError(unistore.KindUnsupported, unistore.OpRenameName, from, "s3 backend cannot rename")
}

// List implements unistore.Accessor. Each NextPage call maps to one
// ListObjectsV2 request; non-recursive listings use a delimiter so common
// prefixes come back as directory entries.
func (b *Backend) List(ctx context.Context, path string, args unistore.OpList) (unistore.Pager, error) {
	return &s3Pager{
		backend: b,
		path:    path,
		prefix:  b.key(path),
		args:    args,
	}, nil
}

type s3Pager struct {
	backend *Backend
	path    string
	prefix  string
	args    unistore.OpList

	token    *string
	returned int
	done     bool
}

func (p *s3Pager) NextPage(ctx context.Context) ([]unistore.Entry, error) {
	if p.done {
		return nil, nil
	}

	input := &s3.ListObjectsV2Input{
		Bucket:            aws.String(p.backend.bucket),
		Prefix:            aws.String(p.prefix),
		ContinuationToken: p.token,
	}
	if !p.args.Recursive {
		input.Delimiter = aws.String("/")
	}
	if p.args.Limit > 0 {
		remaining := p.args.Limit - p.returned
		if remaining <= 0 {
			p.done = true
			return nil, nil
		}
		input.MaxKeys = aws.Int32(int32(min(remaining, maxBatchDelete)))
	}

	resp, err := p.backend.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, mapError(unistore.OpListName, p.path, err)
	}

	var entries []unistore.Entry
	for _, cp := range resp.CommonPrefixes {
		entries = append(entries, unistore.Entry{
			Path:     strings.TrimPrefix(aws.ToString(cp.Prefix), p.backend.prefix),
			Metadata: &unistore.Metadata{Mode: unistore.ModeDir},
		})
	}
	for _, obj := range resp.Contents {
		key := aws.ToString(obj.Key)
		if key == p.prefix {
			continue
		}
		entryPath := strings.TrimPrefix(key, p.backend.prefix)
		meta := unistore.Metadata{
			Mode:          unistore.ModeFile,
			ContentLength: aws.ToInt64(obj.Size),
			ETag:          aws.ToString(obj.ETag),
			LastModified:  aws.ToTime(obj.LastModified),
		}
		if strings.HasSuffix(key, "/") {
			meta = unistore.Metadata{Mode: unistore.ModeDir}
		}
		entries = append(entries, unistore.Entry{Path: entryPath, Metadata: &meta})
	}

	p.returned += len(entries)
	p.token = resp.NextContinuationToken
	if !aws.ToBool(resp.IsTruncated) || p.token == nil {
		p.done = true
	}
	if len(entries) == 0 && !p.done {
		return p.NextPage(ctx)
	}
	return entries, nil
}

// Batch implements unistore.Accessor via DeleteObjects. Per-key failures
// come back in the result slice rather than failing the whole call.
func (b *Backend) Batch(ctx context.Context, args unistore.OpBatch) ([]unistore.BatchResult, error) {
	objects := make([]types.ObjectIdentifier, 0, len(args.Delete))
	for _, path := range args.Delete {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(b.key(path))})
	}

	resp, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(b.bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return nil, mapError(unistore.OpBatchName, "", err)
	}

	failed := make(map[string]error, len(resp.Errors))
	for _, e := range resp.Errors {
		key := aws.ToString(e.Key)
		failed[key] = unistore.NewError(unistore.KindUnexpected, unistore.OpDeleteName,
			strings.TrimPrefix(key, b.prefix),
			fmt.Sprintf("%s: %s", aws.ToString(e.Code), aws.ToString(e.Message)))
	}

	results := make([]unistore.BatchResult, 0, len(args.Delete))
	for _, path := range args.Delete {
		results = append(results, unistore.BatchResult{Path: path, Err: failed[b.key(path)]})
	}
	return results, nil
}

// Presign implements unistore.Accessor.
func (b *Backend) Presign(ctx context.Context, path string, args unistore.OpPresign) (*unistore.PresignedRequest, error) {
	expire := func(o *s3.PresignOptions) { o.Expires = args.Expire }

	var (
		req *v4.PresignedHTTPRequest
		err error
	)
	switch args.Operation {
	case unistore.PresignRead:
		req, err = b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key(path)),
		}, expire)
	case unistore.PresignWrite:
		req, err = b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key(path)),
		}, expire)
	case unistore.PresignStat:
		req, err = b.presign.PresignHeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key(path)),
		}, expire)
	default:
		return nil, unistore.NewError(unistore.KindUnsupported, unistore.OpPresignName, path, "unknown presign operation")
	}
	if err != nil {
		return nil, mapError(unistore.OpPresignName, path, err)
	}

	return &unistore.PresignedRequest{
		Method: req.Method,
		URL:    req.URL,
		Header: http.Header(req.SignedHeader),
	}, nil
}

// isNotFound reports whether err is an S3 404-family error.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404", "NoSuchBucket":
			return true
		}
	}
	var respErr interface{ HTTPStatusCode() int }
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404
}

// mapError translates AWS SDK errors into the unistore taxonomy. Throttling
// and server-side 5xx failures are marked temporary so a retry layer can
// act on them.
func mapError(op, path string, err error) error {
	if isNotFound(err) {
		return unistore.NewError(unistore.KindNotFound, op, path, "object not found").WithCause(err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return unistore.NewError(unistore.KindPermissionDenied, op, path, "access denied").WithCause(err)
		case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded":
			return unistore.NewError(unistore.KindRateLimited, op, path, "rate limited").AsTemporary().WithCause(err)
		case "RequestTimeout", "InternalError", "ServiceUnavailable":
			return unistore.NewError(unistore.KindUnexpected, op, path, "upstream failure").AsTemporary().WithCause(err)
		}
	}

	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		switch code := respErr.HTTPStatusCode(); {
		case code == 403:
			return unistore.NewError(unistore.KindPermissionDenied, op, path, "access denied").WithCause(err)
		case code == 429:
			return unistore.NewError(unistore.KindRateLimited, op, path, "rate limited").AsTemporary().WithCause(err)
		case code >= 500:
			return unistore.NewError(unistore.KindUnexpected, op, path, "upstream failure").AsTemporary().WithCause(err)
		}
	}

	// Network-level failures (timeouts, resets) are worth retrying.
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return unistore.NewError(unistore.KindUnexpected, op, path, "request timeout").AsTemporary().WithCause(err)
	}

	return unistore.NewError(unistore.KindUnexpected, op, path, "s3 request failed").WithCause(err)
}

var (
	_ unistore.Accessor = (*Backend)(nil)
	_ S3API             = (*s3.Client)(nil)
	_ PresignAPI        = (*s3.PresignClient)(nil)
)

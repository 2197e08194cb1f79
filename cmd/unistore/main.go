// Command unistore is a small object-store CLI built on the unistore
// library. Backends are selected through named profiles in a YAML config
// file, so the same commands work against a local directory, a bolt file,
// or an S3 bucket.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"github.com/bleepstore/unistore"
	"github.com/bleepstore/unistore/internal/config"
	"github.com/bleepstore/unistore/internal/logging"
	"github.com/bleepstore/unistore/layers"

	// Register the built-in backends.
	_ "github.com/bleepstore/unistore/services/bolt"
	_ "github.com/bleepstore/unistore/services/fs"
	_ "github.com/bleepstore/unistore/services/memory"
	_ "github.com/bleepstore/unistore/services/s3"
)

type cli struct {
	Config    string `short:"c" default:"~/.config/unistore/unistore.yaml" help:"Path to the config file."`
	Profile   string `short:"p" help:"Profile to use (default: the config's default_profile)."`
	LogLevel  string `help:"Log level: debug, info, warn, error." default:"warn"`
	LogFormat string `help:"Log format: text, json." default:"text"`

	Ls      lsCmd      `cmd:"" help:"List entries under a directory path."`
	Cat     catCmd     `cmd:"" help:"Print an object's contents to stdout."`
	Put     putCmd     `cmd:"" help:"Upload a local file (or stdin) to the store."`
	Cp      cpCmd      `cmd:"" help:"Copy an object within the store."`
	Stat    statCmd    `cmd:"" help:"Show an object's metadata."`
	Rm      rmCmd      `cmd:"" help:"Delete objects."`
	Mkdir   mkdirCmd   `cmd:"" help:"Create a directory."`
	Presign presignCmd `cmd:"" help:"Generate a presigned request URL."`
	Check   checkCmd   `cmd:"" help:"Verify the configured backend is reachable."`
}

// appContext carries the resolved operator into command Run methods.
type appContext struct {
	ctx context.Context
	op  *unistore.Operator
}

func main() {
	var flags cli
	parsed := kong.Parse(&flags,
		kong.Name("unistore"),
		kong.Description("Unified object storage access."),
		kong.UsageOnError(),
	)

	logging.Setup(flags.LogLevel, flags.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	op, err := openOperator(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := parsed.Run(&appContext{ctx: ctx, op: op}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openOperator resolves the profile and assembles the layered operator.
func openOperator(flags cli) (*unistore.Operator, error) {
	path := flags.Config
	if home, err := os.UserHomeDir(); err == nil && len(path) > 1 && path[:2] == "~/" {
		path = filepath.Join(home, path[2:])
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	profile, err := cfg.Profile(flags.Profile)
	if err != nil {
		return nil, err
	}

	// Logging outermost, retry in the middle, the concurrency cap closest to
	// the backend so each attempt holds a token only while it runs.
	stack := []unistore.Layer{layers.NewLogging(nil)}
	if r := profile.Retry; r != nil {
		retry := layers.NewRetry()
		if r.MaxTimes > 0 {
			retry.MaxTimes = r.MaxTimes
		}
		if r.MinDelay > 0 {
			retry.MinDelay = r.MinDelay.Std()
		}
		if r.MaxDelay > 0 {
			retry.MaxDelay = r.MaxDelay.Std()
		}
		if r.Factor > 0 {
			retry.Factor = r.Factor
		}
		if r.Jitter != nil {
			retry.Jitter = *r.Jitter
		}
		stack = append(stack, retry)
	}
	if profile.Concurrency > 0 {
		stack = append(stack, layers.NewConcurrencyLimit(profile.Concurrency))
	}

	return unistore.Open(profile.Scheme, profile.Options, stack...)
}

type lsCmd struct {
	Path      string `arg:"" optional:"" default:"/" help:"Directory path to list."`
	Recursive bool   `short:"r" help:"List the whole subtree."`
	Limit     int    `short:"n" help:"Stop after this many entries."`
	Long      bool   `short:"l" help:"Show size and modification time."`
}

func (c *lsCmd) Run(app *appContext) error {
	var opts []unistore.ListOption
	if c.Recursive {
		opts = append(opts, unistore.WithRecursive())
	}
	if c.Limit > 0 {
		opts = append(opts, unistore.WithLimit(c.Limit))
	}

	lister, err := app.op.List(app.ctx, c.Path, opts...)
	if err != nil {
		return err
	}
	defer lister.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	for {
		entry, err := lister.Next(app.ctx)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		if !c.Long {
			fmt.Fprintln(w, entry.Path)
			continue
		}
		size, modified := "-", "-"
		if m := entry.Metadata; m != nil && m.Mode.IsFile() {
			size = fmt.Sprintf("%d", m.ContentLength)
			if !m.LastModified.IsZero() {
				modified = m.LastModified.Local().Format(time.DateTime)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", size, modified, entry.Path)
	}
}

type catCmd struct {
	Path string `arg:"" help:"Object path to print."`
}

func (c *catCmd) Run(app *appContext) error {
	r, err := app.op.Reader(app.ctx, c.Path)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(os.Stdout, r)
	return err
}

type putCmd struct {
	Source      string `arg:"" help:"Local file to upload, or - for stdin."`
	Path        string `arg:"" help:"Destination object path."`
	ContentType string `help:"Content-Type to store with the object."`
}

func (c *putCmd) Run(app *appContext) error {
	var src io.Reader = os.Stdin
	if c.Source != "-" {
		f, err := os.Open(c.Source)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	var opts []unistore.WriteOption
	if c.ContentType != "" {
		opts = append(opts, unistore.WithContentType(c.ContentType))
	}

	w, err := app.op.Writer(app.ctx, c.Path, opts...)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

type cpCmd struct {
	From string `arg:"" help:"Source object path."`
	To   string `arg:"" help:"Destination object path."`
}

func (c *cpCmd) Run(app *appContext) error {
	return app.op.Copy(app.ctx, c.From, c.To)
}

type statCmd struct {
	Path string `arg:"" help:"Path to inspect."`
}

func (c *statCmd) Run(app *appContext) error {
	meta, err := app.op.Stat(app.ctx, c.Path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "path\t%s\n", c.Path)
	fmt.Fprintf(w, "mode\t%s\n", meta.Mode)
	if meta.Mode.IsFile() {
		fmt.Fprintf(w, "size\t%d\n", meta.ContentLength)
	}
	if meta.ContentType != "" {
		fmt.Fprintf(w, "content-type\t%s\n", meta.ContentType)
	}
	if meta.ETag != "" {
		fmt.Fprintf(w, "etag\t%s\n", meta.ETag)
	}
	if !meta.LastModified.IsZero() {
		fmt.Fprintf(w, "modified\t%s\n", meta.LastModified.Local().Format(time.DateTime))
	}
	return nil
}

type rmCmd struct {
	Paths     []string `arg:"" help:"Paths to delete."`
	Recursive bool     `short:"r" help:"Delete directories and their contents."`
}

func (c *rmCmd) Run(app *appContext) error {
	if c.Recursive {
		for _, p := range c.Paths {
			if err := app.op.RemoveAll(app.ctx, p); err != nil {
				return err
			}
		}
		return nil
	}
	return app.op.Remove(app.ctx, c.Paths)
}

type mkdirCmd struct {
	Path string `arg:"" help:"Directory path to create (trailing slash optional)."`
}

func (c *mkdirCmd) Run(app *appContext) error {
	path := c.Path
	if len(path) == 0 || path[len(path)-1] != '/' {
		path += "/"
	}
	return app.op.CreateDir(app.ctx, path)
}

type presignCmd struct {
	Operation string        `arg:"" enum:"read,write,stat" help:"Operation to presign: read, write, or stat."`
	Path      string        `arg:"" help:"Object path."`
	Expire    time.Duration `short:"e" default:"15m" help:"How long the URL stays valid."`
}

func (c *presignCmd) Run(app *appContext) error {
	var (
		req *unistore.PresignedRequest
		err error
	)
	switch c.Operation {
	case "read":
		req, err = app.op.PresignRead(app.ctx, c.Path, c.Expire)
	case "write":
		req, err = app.op.PresignWrite(app.ctx, c.Path, c.Expire)
	case "stat":
		req, err = app.op.PresignStat(app.ctx, c.Path, c.Expire)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", req.Method, req.URL)
	return nil
}

type checkCmd struct{}

func (c *checkCmd) Run(app *appContext) error {
	if err := app.op.Check(app.ctx); err != nil {
		return err
	}
	info := app.op.Info()
	fmt.Printf("ok: %s backend %q reachable\n", info.Scheme, info.Name)
	return nil
}

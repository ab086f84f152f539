// Package watch polls files for changes and publishes their contents as
// views. Each watched path gets its own goroutine; a change is detected by
// comparing the (mtime, size) signature between ticks, so unchanged files
// are never re-read. Watchers publish through the same path as remote HTTP
// callers: same throttle gate, same artifact-kind inference.
package watch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sonnes/drishti/core"
	"github.com/sonnes/drishti/filekind"
	"github.com/sonnes/drishti/server"
	"github.com/sonnes/drishti/store"
)

// ReadMode selects which part of a watched file is read on each tick.
type ReadMode string

const (
	// ReadAuto defaults to head for tabular files and tail for the rest.
	ReadAuto ReadMode = ""
	ReadHead ReadMode = "head"
	ReadTail ReadMode = "tail"
)

// Spec describes one watched file.
type Spec struct {
	Path     string
	Section  string // defaults to "watch"
	Label    string // defaults to the file name
	ReadMode ReadMode
	Kind     string // "auto" (default), "text", or "json"

	Interval time.Duration // poll interval; defaults to 2s
	MaxBytes int           // read budget per tick; defaults to 64_000
	MaxRows  int           // row cap for tabular files

	UpdateLimitS *float64 // server-side throttle window, seconds
	Force        bool     // bypass throttling
}

// Signature identifies a file version for change detection.
type Signature struct {
	MtimeNs int64
	Size    int64
}

// FS abstracts stat and open so tests can fake the filesystem.
type FS interface {
	Stat(path string) (Signature, error)
	Open(path string) (io.ReadSeekCloser, error)
}

type osFS struct{}

func (osFS) Stat(path string) (Signature, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Signature{}, err
	}
	return Signature{MtimeNs: info.ModTime().UnixNano(), Size: info.Size()}, nil
}

func (osFS) Open(path string) (io.ReadSeekCloser, error) {
	return os.Open(path)
}

// Publisher is the publish path watchers feed into.
type Publisher interface {
	Publish(req server.PublishRequest) (server.PublishResponse, error)
}

// Watcher runs polling loops over a shared store and publish path.
type Watcher struct {
	store *store.Store
	pub   Publisher
	fs    FS
	sleep func(time.Duration)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithFS replaces the real filesystem, for tests.
func WithFS(fs FS) Option {
	return func(w *Watcher) { w.fs = fs }
}

// WithSleep replaces the inter-tick sleep, for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(w *Watcher) { w.sleep = sleep }
}

// New creates a Watcher publishing into pub and registering views on st.
func New(st *store.Store, pub Publisher, opts ...Option) *Watcher {
	w := &Watcher{
		store: st,
		pub:   pub,
		fs:    osFS{},
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers the view for each spec and launches one polling goroutine
// per watched path. The goroutines have no cancellation; like the rest of
// the process-lifetime background work they exit with the process.
func (w *Watcher) Start(specs []Spec) {
	for _, spec := range specs {
		spec = withDefaults(spec)

		preKind := store.KindArtifact
		if filekind.Infer(spec.Path) == filekind.KindCSV {
			preKind = store.KindTable
		}
		id := store.NormalizeViewID("", spec.Section, spec.Label)
		w.store.RegisterView(id, spec.Section, spec.Label, preKind, false)

		go w.run(spec)
	}
}

func withDefaults(spec Spec) Spec {
	if spec.Section == "" {
		spec.Section = "watch"
	}
	if spec.Label == "" {
		spec.Label = filepath.Base(spec.Path)
	}
	if spec.Interval <= 0 {
		spec.Interval = 2 * time.Second
	}
	if spec.Interval < 50*time.Millisecond {
		spec.Interval = 50 * time.Millisecond
	}
	if spec.MaxBytes <= 0 {
		spec.MaxBytes = 64_000
	}
	return spec
}

func (w *Watcher) run(spec Spec) {
	var lastSig *Signature
	for {
		lastSig = w.tick(spec, lastSig)
		w.sleep(spec.Interval)
	}
}

// tick performs one poll: stat, change check, read, coerce, publish. Any
// failure publishes a text artifact describing the error; the loop never
// stops because of one.
func (w *Watcher) tick(spec Spec, lastSig *Signature) *Signature {
	var sig *Signature
	if s, err := w.fs.Stat(spec.Path); err == nil {
		sig = &s
	}

	if sig != nil && lastSig != nil && *sig == *lastSig {
		return lastSig
	}

	raw, err := w.read(spec)
	if err != nil {
		w.publishError(spec, fmt.Sprintf("[drishti watch] read error: %v", err))
		return lastSig
	}

	// The signature is committed once the read succeeds, so a parse failure
	// below is not retried until the file changes again.
	lastSig = sig

	switch spec.Kind {
	case "text":
		w.publishArtifact(spec, string(raw), "text")

	case "json":
		var obj any
		if err := json.Unmarshal(raw, &obj); err != nil {
			w.publishError(spec, fmt.Sprintf("[drishti watch] JSON parse error: %v\n\n%s", err, raw))
			return lastSig
		}
		w.publishArtifact(spec, obj, "json")

	default:
		coerced, err := filekind.Coerce(spec.Path, raw, filekind.Options{MaxRows: spec.MaxRows})
		if err != nil {
			w.publishError(spec, fmt.Sprintf("[drishti watch] parse error: %v\n\n%s", err, raw))
			return lastSig
		}
		if sample, ok := coerced.Obj.(core.TableSample); ok && coerced.PublishKind == filekind.PublishTable {
			w.publishTable(spec, sample)
		} else {
			w.publishArtifact(spec, coerced.Obj, string(coerced.ArtifactKind))
		}
	}

	return lastSig
}

// read fetches the bounded chunk for this tick. CSV files read in tail mode
// get the header-recovery read so reconstructed tables keep their columns.
func (w *Watcher) read(spec Spec) ([]byte, error) {
	mode := spec.ReadMode
	if mode == ReadAuto {
		mode = defaultReadMode(spec.Path)
	}

	if filekind.Infer(spec.Path) == filekind.KindCSV && mode == ReadTail {
		return w.readCSVTailWithHeader(spec.Path, spec.MaxBytes)
	}
	if mode == ReadHead {
		return w.readHead(spec.Path, spec.MaxBytes)
	}
	return w.readTail(spec.Path, spec.MaxBytes)
}

// defaultReadMode keeps tabular files whole from the top so truncation can
// never sever the header row; everything else shows its most recent bytes.
func defaultReadMode(path string) ReadMode {
	if filekind.Infer(path) == filekind.KindCSV {
		return ReadHead
	}
	return ReadTail
}

func (w *Watcher) readHead(path string, maxBytes int) ([]byte, error) {
	f, err := w.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, int64(maxBytes)))
}

func (w *Watcher) readTail(path string, maxBytes int) ([]byte, error) {
	f, err := w.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err == nil {
		start := size - int64(maxBytes)
		if start < 0 {
			start = 0
		}
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return nil, err
		}
	} else if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	return io.ReadAll(io.LimitReader(f, int64(maxBytes)))
}

// readCSVTailWithHeader recovers the header line with a small head read and
// prefixes it onto the tail chunk unless the tail already begins with that
// exact header, guaranteeing the parsed table has correct column names.
func (w *Watcher) readCSVTailWithHeader(path string, maxBytes int) ([]byte, error) {
	headBudget := 64_000
	if maxBytes < headBudget {
		headBudget = maxBytes
	}
	head, err := w.readHead(path, headBudget)
	if err != nil {
		return nil, err
	}

	header := head
	if nl := bytes.IndexByte(head, '\n'); nl != -1 {
		header = head[:nl+1]
	}

	tail, err := w.readTail(path, maxBytes)
	if err != nil {
		return nil, err
	}

	if bytes.HasPrefix(tail, header) || bytes.Equal(tail, header) {
		return tail, nil
	}

	if len(header) > 0 && !bytes.HasSuffix(header, []byte("\n")) {
		header = append(header, '\n')
	}
	return append(header, tail...), nil
}

func (w *Watcher) publishArtifact(spec Spec, obj any, artifactKind string) {
	resp, err := w.pub.Publish(server.PublishRequest{
		Kind:         "artifact",
		Section:      spec.Section,
		Label:        spec.Label,
		Artifact:     obj,
		ArtifactKind: artifactKind,
		UpdateLimitS: spec.UpdateLimitS,
		Force:        spec.Force,
	})
	logPublish(spec, resp, err)
}

func (w *Watcher) publishTable(spec Spec, sample core.TableSample) {
	resp, err := w.pub.Publish(server.PublishRequest{
		Kind:         "table",
		Section:      spec.Section,
		Label:        spec.Label,
		Table:        &sample,
		UpdateLimitS: spec.UpdateLimitS,
		Force:        spec.Force,
	})
	logPublish(spec, resp, err)
}

func (w *Watcher) publishError(spec Spec, msg string) {
	w.publishArtifact(spec, msg, "text")
}

func logPublish(spec Spec, resp server.PublishResponse, err error) {
	if err != nil {
		slog.Warn("watch publish failed", "path", spec.Path, "error", err)
		return
	}
	if resp.Ignored {
		slog.Debug("watch publish throttled", "path", spec.Path, "view_id", resp.ViewID)
	}
}

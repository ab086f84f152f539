// Package filekind infers what a file holds from its name and coerces raw
// file bytes into a publishable object: a table for tabular files, a typed
// artifact for everything else. The CLI watch loops and the remote publish
// client share this coercion so both paths publish identical shapes.
package filekind

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	ini "gopkg.in/ini.v1"
	yaml "gopkg.in/yaml.v3"

	"github.com/sonnes/drishti/core"
)

// Kind classifies a file by extension.
type Kind string

const (
	KindText     Kind = "text"
	KindJSON     Kind = "json"
	KindMarkdown Kind = "markdown"
	KindINI      Kind = "ini"
	KindTOML     Kind = "toml"
	KindYAML     Kind = "yaml"
	KindCSV      Kind = "csv"
	KindImage    Kind = "image"
	KindHTML     Kind = "html"
	KindUnknown  Kind = "unknown"
)

// PublishKind says which publish path the coerced object takes.
type PublishKind string

const (
	PublishTable    PublishKind = "table"
	PublishArtifact PublishKind = "artifact"
)

// Result is the outcome of coercing a file to a publishable object.
type Result struct {
	PublishKind  PublishKind
	ArtifactKind core.ArtifactKind // empty for tables
	Obj          any
	FileKind     Kind
	MIME         string
}

// Options bounds the coercion.
type Options struct {
	// MaxRows caps the number of data rows parsed from tabular files.
	// Zero means no cap.
	MaxRows int
}

// Infer classifies a file path by its extension.
func Infer(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return KindJSON
	case ".ini", ".cfg":
		return KindINI
	case ".toml":
		return KindTOML
	case ".yaml", ".yml":
		return KindYAML
	case ".md", ".markdown":
		return KindMarkdown
	case ".csv":
		return KindCSV
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".svg":
		return KindImage
	case ".html", ".htm":
		return KindHTML
	}
	return KindUnknown
}

// ImageMIME returns the MIME type for an image file path.
func ImageMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".svg":
		return "image/svg+xml"
	}
	return "application/octet-stream"
}

// Coerce converts raw file bytes into a publishable object according to the
// inferred file kind. Parse errors are returned to the caller; the watcher
// turns them into text artifacts rather than dropping the tick.
func Coerce(path string, raw []byte, opts Options) (Result, error) {
	fk := Infer(path)

	switch fk {
	case KindJSON:
		var obj any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Result{}, fmt.Errorf("parse json %s: %w", path, err)
		}
		return artifactResult(core.KindJSON, obj, fk), nil

	case KindINI:
		f, err := ini.Load(raw)
		if err != nil {
			return Result{}, fmt.Errorf("parse ini %s: %w", path, err)
		}
		obj := make(map[string]any)
		for _, section := range f.Sections() {
			if section.Name() == ini.DefaultSection && len(section.Keys()) == 0 {
				continue
			}
			kv := make(map[string]any, len(section.Keys()))
			for _, key := range section.Keys() {
				kv[key.Name()] = key.Value()
			}
			obj[section.Name()] = kv
		}
		return artifactResult(core.KindJSON, obj, fk), nil

	case KindTOML:
		var obj map[string]any
		if err := toml.Unmarshal(raw, &obj); err != nil {
			return Result{}, fmt.Errorf("parse toml %s: %w", path, err)
		}
		return artifactResult(core.KindJSON, obj, fk), nil

	case KindYAML:
		var obj any
		if err := yaml.Unmarshal(raw, &obj); err != nil {
			return Result{}, fmt.Errorf("parse yaml %s: %w", path, err)
		}
		return artifactResult(core.KindJSON, obj, fk), nil

	case KindMarkdown:
		return artifactResult(core.KindMarkdown, string(raw), fk), nil

	case KindHTML:
		return artifactResult(core.KindHTML, string(raw), fk), nil

	case KindCSV:
		sample, err := ParseCSVSample(raw, opts.MaxRows)
		if err != nil {
			return Result{}, fmt.Errorf("parse csv %s: %w", path, err)
		}
		return Result{
			PublishKind: PublishTable,
			Obj:         sample,
			FileKind:    fk,
		}, nil

	case KindImage:
		mime := ImageMIME(path)
		payload := core.ImagePayload{
			MIME:     mime,
			DataB64:  base64.StdEncoding.EncodeToString(raw),
			Filename: filepath.Base(path),
		}
		res := artifactResult(core.KindImage, payload, fk)
		res.MIME = mime
		return res, nil
	}

	return artifactResult(core.KindText, string(raw), fk), nil
}

func artifactResult(kind core.ArtifactKind, obj any, fk Kind) Result {
	return Result{
		PublishKind:  PublishArtifact,
		ArtifactKind: kind,
		Obj:          obj,
		FileKind:     fk,
	}
}

// ParseCSVSample parses CSV bytes into a bounded table sample. Parsing is
// lenient: ragged rows are padded or clipped to the header width and
// malformed lines are skipped, since tail reads can start mid-record.
func ParseCSVSample(raw []byte, maxRows int) (core.TableSample, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return core.TableSample{}, fmt.Errorf("read csv header: %w", err)
	}

	var rows [][]any
	total := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Skip unparseable lines (partial tail reads, stray quotes).
			continue
		}
		total++
		if maxRows > 0 && len(rows) >= maxRows {
			continue
		}
		row := make([]any, len(header))
		for i := range header {
			if i < len(record) {
				row[i] = record[i]
			} else {
				row[i] = ""
			}
		}
		rows = append(rows, row)
	}

	return core.TableSample{
		Columns:      header,
		Rows:         rows,
		TotalRows:    total,
		ReturnedRows: len(rows),
	}, nil
}

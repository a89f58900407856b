// Package loader builds the immutable registry from FHIR StructureDefinition
// sources: a Bundle (file, reader or bytes), a FHIR NPM package (.tgz), or
// typed r4 StructureDefinitions.
//
// Loading is all-or-nothing. Any malformed selected entry fails the whole
// load with an *issue.Error of kind issue.KindLoad and no partial registry is
// returned.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	fs "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/pkg/config"
	"github.com/gofhir/fhirschema/pkg/element"
	"github.com/gofhir/fhirschema/pkg/issue"
	"github.com/gofhir/fhirschema/pkg/registry"
)

// Loader builds registries. A Loader holds no per-load state and may be used
// for any number of loads, concurrently.
type Loader struct {
	opts   *fs.Options
	filter *entryFilter
	stream *entryStream
}

// New creates a Loader. It fails with a load error when the entry filter
// does not compile.
func New(opts ...fs.Option) (*Loader, error) {
	o := fs.Apply(opts...)
	filter, err := compileFilter(o.Schema.EntryFilter)
	if err != nil {
		return nil, issue.Wrap(issue.DiagLoadInvalidFilter, err, map[string]any{
			"expression": o.Schema.EntryFilter,
		})
	}
	return &Loader{
		opts:   o,
		filter: filter,
		stream: newEntryStream(),
	}, nil
}

// LoadIndex reads the Bundle in r and builds a registry. source names the
// input in messages.
func LoadIndex(ctx context.Context, r io.Reader, source string, opts ...fs.Option) (*registry.Registry, error) {
	l, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, r, source)
}

// LoadFile reads the Bundle file at path and builds a registry.
func LoadFile(ctx context.Context, path string, opts ...fs.Option) (*registry.Registry, error) {
	l, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return l.LoadFile(ctx, path)
}

// LoadBytes builds a registry from an in-memory Bundle.
func LoadBytes(ctx context.Context, data []byte, opts ...fs.Option) (*registry.Registry, error) {
	l, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, bytes.NewReader(data), "<memory>")
}

// LoadFile reads the Bundle file at path.
func (l *Loader) LoadFile(ctx context.Context, path string) (*registry.Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, l.failed(issue.Wrap(issue.DiagLoadUnreadable, err, map[string]any{"source": path}))
	}
	defer f.Close()
	return l.Load(ctx, f, path)
}

// Load reads the Bundle in r. Entries are decoded one at a time; each
// StructureDefinition entry is tested against the entry filter and, when
// selected, validated and added to the registry.
func (l *Loader) Load(ctx context.Context, r io.Reader, source string) (*registry.Registry, error) {
	start := time.Now()
	l.opts.Logger.Debug("Loading bundle %s", source)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := newBuild(l.opts.Schema)
	for e := range l.stream.Stream(streamCtx, r) {
		if e.Err != nil {
			return nil, l.failed(streamError(e.Err, source))
		}
		if err := l.addEntry(b, e.Index, e.Resource); err != nil {
			return nil, l.failed(err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, l.failed(canceled(err, source))
	}

	return l.finish(b, source, start)
}

// addEntry selects and converts one bundle entry.
func (l *Loader) addEntry(b *build, index int, raw json.RawMessage) error {
	if isAbsent(raw) {
		return nil
	}

	var head struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return issue.Wrap(issue.DiagLoadEntryMalformed, err, map[string]any{"index": index})
	}
	if head.ResourceType != l.opts.Schema.ResourceTypeStructureDefinition {
		return nil
	}

	ok, err := l.filter.Match(raw)
	if err != nil {
		return issue.Wrap(issue.DiagLoadInvalidFilter, err, map[string]any{
			"expression": l.filter.source,
		})
	}
	if !ok {
		return nil
	}

	var sd registry.StructureDefinition
	if err := json.Unmarshal(raw, &sd); err != nil {
		return issue.Wrap(issue.DiagLoadEntryMalformed, err, map[string]any{"index": index})
	}
	return b.add(index, &sd)
}

// finish checks the accumulated build and returns the registry.
func (l *Loader) finish(b *build, source string, start time.Time) (*registry.Registry, error) {
	if b.builder.Len() == 0 {
		return nil, l.failed(issue.New(issue.DiagLoadEmpty, map[string]any{"source": source}))
	}

	reg := b.builder.Build()
	elapsed := time.Since(start)
	l.opts.Logger.Info("Loaded %d resource definitions (%d elements) from %s in %s",
		reg.Len(), reg.ElementCount(), source, elapsed.Round(time.Millisecond))
	if l.opts.Metrics != nil {
		l.opts.Metrics.RecordLoad(elapsed, nil)
	}
	return reg, nil
}

// failed records a failed load.
func (l *Loader) failed(err error) error {
	if l.opts.Metrics != nil {
		l.opts.Metrics.RecordLoad(0, err)
	}
	return err
}

// streamError classifies a bundle decoding failure.
func streamError(err error, source string) error {
	params := map[string]any{"source": source}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return canceled(err, source)
	case errors.Is(err, errNotBundle):
		return issue.Wrap(issue.DiagLoadNotBundle, err, params)
	default:
		return issue.Wrap(issue.DiagLoadUnreadable, err, params)
	}
}

func canceled(err error, source string) error {
	return issue.Wrap(issue.DiagLoadCanceled, err, map[string]any{"source": source})
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// build accumulates the resources of one load.
type build struct {
	schema  *config.Schema
	builder *registry.Builder
}

func newBuild(s *config.Schema) *build {
	return &build{schema: s, builder: registry.NewBuilder()}
}

// add validates a selected definition and adds it as a resource.
//
// The root element supplies the description and is not indexed. Slice
// entries, their descendants and infrastructure elements are dropped. Every other field record
// must convert to a valid element, lie below the root path, and have a path
// unique within the resource.
func (b *build) add(index int, sd *registry.StructureDefinition) error {
	name := sd.Name
	if name == "" {
		return issue.New(issue.DiagLoadEntryNoName, map[string]any{"index": index})
	}
	if sd.Snapshot == nil || len(sd.Snapshot.Element) == 0 {
		return issue.New(issue.DiagLoadEntryNoElements, map[string]any{"resource": name})
	}

	root := sd.Type
	if root == "" {
		root = name
	}

	all := sd.Snapshot.Element
	byPath := make(map[string]*registry.ElementDefinition, len(all))
	for i := range all {
		ed := &all[i]
		if ed.InSlice() {
			continue
		}
		if _, exists := byPath[ed.Path]; !exists {
			byPath[ed.Path] = ed
		}
	}
	lookup := func(path string) (*registry.ElementDefinition, bool) {
		ed, ok := byPath[path]
		return ed, ok
	}

	description := sd.Description
	if rootEl, ok := byPath[root]; ok && rootEl.Short != "" {
		description = rootEl.Short
	}

	prefix := root + "."
	seen := make(map[string]struct{}, len(all))
	kept := make([]*registry.ElementDefinition, 0, len(all))
	for i := range all {
		ed := &all[i]
		if ed.InSlice() || (ed.Path != "" && ed.Path == root) {
			continue
		}
		if ed.Path != "" && b.schema.IsInfrastructure(ed.Path) {
			continue
		}

		if _, err := element.Convert(b.schema, ed, lookup); err != nil {
			return invalidElement(name, ed.Path, err.Error())
		}
		if len(ed.Path) <= len(prefix) || ed.Path[:len(prefix)] != prefix {
			return invalidElement(name, ed.Path, fmt.Sprintf("path is outside %s", root))
		}
		if _, dup := seen[ed.Path]; dup {
			return invalidElement(name, ed.Path, "duplicate path")
		}
		seen[ed.Path] = struct{}{}
		kept = append(kept, ed)
	}

	res := registry.NewResource(name, root, description, sd, kept)
	if !b.builder.Add(res) {
		return issue.New(issue.DiagLoadDuplicateResource, map[string]any{"resource": name})
	}
	b.builder.SetFHIRVersion(sd.FHIRVersion)
	return nil
}

func invalidElement(resource, path, reason string) error {
	return issue.New(issue.DiagLoadInvalidElement, map[string]any{
		"resource": resource,
		"path":     path,
		"reason":   reason,
	}, path)
}

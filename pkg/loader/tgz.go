package loader

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	fs "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/pkg/issue"
	"github.com/gofhir/fhirschema/pkg/registry"
)

// packageManifest is the part of a FHIR NPM package.json the loader reads.
type packageManifest struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	FHIRVersions []string `json:"fhirVersions,omitempty"`
}

// LoadPackageTgz reads a FHIR NPM package (.tgz) and builds a registry from
// its StructureDefinition files.
func LoadPackageTgz(ctx context.Context, tgzPath string, opts ...fs.Option) (*registry.Registry, error) {
	l, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return l.LoadPackageTgz(ctx, tgzPath)
}

// LoadPackage reads a gzipped FHIR NPM package from r. source names the
// package in errors and logs.
func LoadPackage(ctx context.Context, r io.Reader, source string, opts ...fs.Option) (*registry.Registry, error) {
	l, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return l.LoadPackageReader(ctx, r, source)
}

// LoadPackageTgz reads the FHIR NPM package at tgzPath.
func (l *Loader) LoadPackageTgz(ctx context.Context, tgzPath string) (*registry.Registry, error) {
	file, err := os.Open(tgzPath)
	if err != nil {
		return nil, l.failed(issue.Wrap(issue.DiagLoadUnreadable, err, map[string]any{"source": tgzPath}))
	}
	defer file.Close()

	return l.LoadPackageReader(ctx, file, tgzPath)
}

// LoadPackageReader reads a gzipped FHIR NPM package from r. Every
// package/StructureDefinition-*.json member is treated as one bundle entry,
// in archive order.
func (l *Loader) LoadPackageReader(ctx context.Context, r io.Reader, source string) (*registry.Registry, error) {
	start := time.Now()
	params := map[string]any{"source": source}

	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, l.failed(issue.Wrap(issue.DiagLoadUnreadable, err, params))
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	b := newBuild(l.opts.Schema)
	var manifest packageManifest

	index := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, l.failed(canceled(err, source))
		}

		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, l.failed(issue.Wrap(issue.DiagLoadUnreadable, err, params))
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		// Normalize path (remove leading "package/" if present)
		name := strings.TrimPrefix(header.Name, "package/")

		if name == "package.json" {
			if err := json.NewDecoder(tarReader).Decode(&manifest); err != nil {
				return nil, l.failed(issue.Wrap(issue.DiagLoadNotBundle, err, params))
			}
			continue
		}
		if !isStructureDefinitionFile(name) {
			continue
		}

		data, err := io.ReadAll(tarReader)
		if err != nil {
			return nil, l.failed(issue.Wrap(issue.DiagLoadUnreadable, err, params))
		}
		if err := l.addEntry(b, index, data); err != nil {
			return nil, l.failed(err)
		}
		index++
	}

	if len(manifest.FHIRVersions) > 0 {
		b.builder.SetFHIRVersion(manifest.FHIRVersions[0])
	}
	if manifest.Name != "" {
		l.opts.Logger.Debug("Read package %s#%s", manifest.Name, manifest.Version)
	}
	return l.finish(b, source, start)
}

// isStructureDefinitionFile reports whether a package member holds one
// StructureDefinition. Only top-level package files are considered.
func isStructureDefinitionFile(name string) bool {
	if strings.Contains(name, "/") {
		return false
	}
	return strings.HasPrefix(name, "StructureDefinition-") && strings.HasSuffix(name, ".json")
}

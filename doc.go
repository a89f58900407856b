// Package fhirschema provides a read-only, in-memory index over FHIR
// StructureDefinition bundles.
//
// A bundle (for example the core profiles-resources.json) is loaded once into
// an immutable registry; queries build element views on demand from the raw
// records and never mutate shared state, so one index can serve any number
// of concurrent callers.
//
// # Quick Start
//
//	import (
//	    fs "github.com/gofhir/fhirschema"
//	    "github.com/gofhir/fhirschema/pkg/index"
//	    "github.com/gofhir/fhirschema/pkg/loader"
//	)
//
//	reg, err := loader.LoadFile(ctx, "profiles-resources.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	idx := index.New(reg, fs.WithSearchLimit(50))
//
//	def, err := idx.GetResourceDefinition("Patient")
//	children, err := idx.GetBackboneElement("Patient", "Patient.contact")
//	matches, err := idx.SearchElements("gender", 10)
//
// # Queries
//
//   - GetResourceDefinition: direct children of the resource root
//   - GetBackboneElement: direct children of a BackboneElement path
//   - SearchElements: case-insensitive keyword search over element names,
//     short descriptions and definitions, in bundle order
//   - ListResources: sorted resource names
//
// # Errors
//
// Failures are *issue.Error values classified by Kind; use errors.Is with
// issue.ErrLoad, issue.ErrNotFound, issue.ErrInvalidPath or
// issue.ErrInvalidArgument.
//
// # Reloading
//
// index.Holder keeps the active index behind an atomic pointer. The watch
// package rebuilds the registry when the bundle file changes and swaps it in
// only after a successful load.
//
// # Packages
//
// loader.LoadPackageTgz reads a FHIR NPM package from disk. The packages
// client resolves a registry reference such as "hl7.fhir.r5.core@5.0.0" and
// its stream is loaded with loader.LoadPackage.
package fhirschema

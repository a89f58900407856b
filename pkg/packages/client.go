// Package packages fetches FHIR NPM packages from a package registry.
//
// The FHIR Package Registry (https://packages.fhir.org) hosts FHIR core
// packages and Implementation Guides. Packages are streamed straight into
// the loader and never written to disk.
package packages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	fs "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/pkg/logger"
)

const (
	// DefaultRegistryURL is the primary FHIR package registry.
	DefaultRegistryURL = "https://packages.fhir.org"

	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 60 * time.Second

	// VersionLatest represents the "latest" version tag.
	VersionLatest = "latest"

	// maxPackageSize bounds a downloaded tarball.
	maxPackageSize = 512 << 20
)

// ErrPackageNotFound is returned when the registry does not know a package
// or version.
var ErrPackageNotFound = errors.New("package not found")

// Ref identifies a package in a registry.
type Ref struct {
	Name    string
	Version string
}

// String returns the reference as "name@version".
func (r Ref) String() string {
	if r.Version == "" || r.Version == VersionLatest {
		return r.Name
	}
	return r.Name + "@" + r.Version
}

// ParseRef parses "name@version", "name#version" or a bare name (latest).
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	name, version := s, VersionLatest
	if i := strings.IndexAny(s, "@#"); i >= 0 {
		name, version = s[:i], s[i+1:]
	}
	if name == "" {
		return Ref{}, fmt.Errorf("invalid package reference %q: empty name", s)
	}
	if version == "" {
		return Ref{}, fmt.Errorf("invalid package reference %q: empty version", s)
	}
	return Ref{Name: name, Version: version}, nil
}

// CorePackages maps FHIR versions to their core package.
var CorePackages = map[fs.FHIRVersion]Ref{
	fs.R4:  {Name: "hl7.fhir.r4.core", Version: "4.0.1"},
	fs.R4B: {Name: "hl7.fhir.r4b.core", Version: "4.3.0"},
	fs.R5:  {Name: "hl7.fhir.r5.core", Version: "5.0.0"},
}

// CoreRef returns the core package for a FHIR version such as "R5" or
// "5.0.0".
func CoreRef(version string) (Ref, bool) {
	ref, ok := CorePackages[fs.ParseFHIRVersion(version)]
	return ref, ok
}

// Client is a FHIR Package Registry client.
type Client struct {
	httpClient  *http.Client
	registryURL string
	log         *logger.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithRegistryURL sets a custom registry URL.
func WithRegistryURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.registryURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a new registry client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		registryURL: DefaultRegistryURL,
		log:         logger.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegistryURL returns the registry base URL.
func (c *Client) RegistryURL() string {
	return c.registryURL
}

// PackageInfo contains metadata about one package version.
type PackageInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	FHIRVersion string `json:"fhirVersion,omitempty"`
	Tarball     string `json:"tarball"`
}

// registryDocument is the registry's answer for GET /{name}.
type registryDocument struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	DistTags    map[string]string `json:"dist-tags"`
	Versions    map[string]struct {
		Version     string `json:"version"`
		FHIRVersion string `json:"fhirVersion"`
		URL         string `json:"url"`
		Dist        struct {
			Tarball string `json:"tarball"`
		} `json:"dist"`
	} `json:"versions"`
}

// GetPackageInfo resolves ref against the registry. A "latest" version is
// resolved through the dist-tags.
func (c *Client) GetPackageInfo(ctx context.Context, ref Ref) (*PackageInfo, error) {
	url := fmt.Sprintf("%s/%s", c.registryURL, ref.Name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, ref.Name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch package info for %s: status %d", ref.Name, resp.StatusCode)
	}

	var doc registryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode package info: %w", err)
	}

	version := ref.Version
	if version == VersionLatest || version == "" {
		latest, ok := doc.DistTags[VersionLatest]
		if !ok {
			return nil, fmt.Errorf("%w: no latest version of %s", ErrPackageNotFound, ref.Name)
		}
		version = latest
	}

	v, ok := doc.Versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%s", ErrPackageNotFound, ref.Name, version)
	}

	// Prefer dist.tarball, fallback to url, then to the registry layout
	tarball := v.Dist.Tarball
	if tarball == "" {
		tarball = v.URL
	}
	if tarball == "" {
		tarball = fmt.Sprintf("%s/%s/%s", c.registryURL, ref.Name, version)
	}

	return &PackageInfo{
		Name:        ref.Name,
		Version:     version,
		Description: doc.Description,
		FHIRVersion: v.FHIRVersion,
		Tarball:     tarball,
	}, nil
}

// Open resolves ref and starts downloading its tarball. The caller must
// close the returned reader. Reads beyond the package size bound fail.
func (c *Client) Open(ctx context.Context, ref Ref) (io.ReadCloser, *PackageInfo, error) {
	info, err := c.GetPackageInfo(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.Tarball, http.NoBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download package: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("failed to download package %s@%s: status %d", info.Name, info.Version, resp.StatusCode)
	}

	c.log.Info("Downloading %s@%s from %s", info.Name, info.Version, info.Tarball)
	return &limitedBody{
		Reader: io.LimitReader(resp.Body, maxPackageSize+1),
		body:   resp.Body,
		onClose: func(n int64) {
			c.log.Debug("Read %d bytes of %s@%s in %s", n, info.Name, info.Version, time.Since(start).Round(time.Millisecond))
		},
	}, info, nil
}

// limitedBody fails reads past maxPackageSize.
type limitedBody struct {
	io.Reader
	body    io.Closer
	n       int64
	onClose func(n int64)
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.Reader.Read(p)
	b.n += int64(n)
	if b.n > maxPackageSize {
		return n, fmt.Errorf("package exceeds %d bytes", maxPackageSize)
	}
	return n, err
}

func (b *limitedBody) Close() error {
	if b.onClose != nil {
		b.onClose(b.n)
	}
	return b.body.Close()
}

package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	fs "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/pkg/config"
	"github.com/gofhir/fhirschema/pkg/index"
	"github.com/gofhir/fhirschema/pkg/issue"
	"github.com/gofhir/fhirschema/pkg/logger"
	"github.com/gofhir/fhirschema/pkg/render"
	"github.com/gofhir/fhirschema/pkg/watch"
)

// maxRequestSize bounds one request line.
const maxRequestSize = 1 << 20

// Request is one tool call read from the input stream.
type Request struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Tool      string          `json:"tool"`
	Arguments Arguments       `json:"arguments"`
}

// Arguments holds the arguments of all tools.
type Arguments struct {
	ResourceType string `json:"resource_type,omitempty"`
	Path         string `json:"path,omitempty"`
	Keyword      string `json:"keyword,omitempty"`
	Limit        *int   `json:"limit,omitempty"`
}

// Response is written for every request. Exactly one of Content and Error is
// set, except for an unknown resource where Content lists the available
// resources.
type Response struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Content string          `json:"content,omitempty"`
	Error   *issue.Issue    `json:"error,omitempty"`
}

// Server answers tool calls against the index in a holder.
type Server struct {
	holder *index.Holder
	render *render.Renderer
	log    *logger.Logger
}

// NewServer creates a Server rendering content in format. Content is
// embedded in JSON strings, so it is never styled.
func NewServer(holder *index.Holder, format render.Format, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{holder: holder, render: render.New(format, false), log: log}
}

// Handle answers one request. Every request sees a single index even if a
// reload happens while it runs.
func (s *Server) Handle(req Request) Response {
	idx := s.holder.Load()
	resp := Response{ID: req.ID}

	content, err := s.dispatch(idx, req)
	if err != nil {
		s.log.Debug("Tool %s failed: %v", req.Tool, err)
		iss := issue.FromError(err)
		resp.Error = &iss
		if errors.Is(err, issue.ErrNotFound) {
			resp.Content, _ = s.render.Resources(idx.ListResources())
		}
		return resp
	}
	resp.Content = content
	return resp
}

func (s *Server) dispatch(idx *index.Index, req Request) (string, error) {
	args := req.Arguments

	switch req.Tool {
	case fs.OpResourceDefinition:
		if args.ResourceType == "" {
			return "", missing("resource_type")
		}
		def, err := idx.GetResourceDefinition(args.ResourceType)
		if err != nil {
			return "", err
		}
		return s.render.Definition(def)

	case fs.OpBackboneElement:
		if args.ResourceType == "" {
			return "", missing("resource_type")
		}
		if args.Path == "" {
			return "", missing("path")
		}
		def, err := idx.GetBackboneElement(args.ResourceType, args.Path)
		if err != nil {
			return "", err
		}
		return s.render.Backbone(args.ResourceType, def)

	case fs.OpSearchElements:
		limit := idx.SearchLimit()
		if args.Limit != nil {
			limit = *args.Limit
		}
		matches, err := idx.SearchElements(args.Keyword, limit)
		if err != nil {
			return "", err
		}
		return s.render.Search(args.Keyword, matches, min(limit, idx.MaxSearchLimit()))

	case fs.OpListResources:
		return s.render.Resources(idx.ListResources())

	default:
		return "", issue.New(issue.DiagToolUnknown, map[string]any{"tool": req.Tool})
	}
}

func missing(name string) error {
	return issue.New(issue.DiagArgumentMissing, map[string]any{"name": name}, name)
}

// Serve reads one JSON request per line from in and writes one JSON response
// per line to out until in is exhausted or ctx is done.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxRequestSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- bytes.Clone(line):
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("failed to read request: %w", err)
					}
				default:
				}
				return nil
			}
			if err := enc.Encode(s.handleLine(line)); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		}
	}
}

func (s *Server) handleLine(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		iss := issue.Wrap(issue.DiagRequestMalformed, err, nil).Issue()
		return Response{Error: &iss}
	}
	return s.Handle(req)
}

func newServeCmd(g *globals) *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Answer tool calls over stdio",
		Long: `Answer tool calls read as JSON lines from stdin and write one JSON response
per line to stdout.

Request:  {"id": 1, "tool": "get_resource_definition", "arguments": {"resource_type": "Patient"}}
Response: {"id": 1, "content": "..."} or {"id": 1, "error": {"severity": ..., "code": ..., "diagnostics": ...}}

Tools:
  get_resource_definition  resource_type
  get_backbone_element     resource_type, path
  search_fhir_elements     keyword, limit (optional)
  list_resources

With --watch the bundle is reloaded when it changes. A failed reload keeps
the current definitions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.serve(cmd)
		},
	}
	c.Flags().Bool(config.KeyWatch, false, "Reload the bundle when it changes (env: FHIRSCHEMA_WATCH)")
	c.Flags().Duration(config.KeyDebounce, 0, "Quiet period before a reload (default 500ms)")
	return c
}

func (g *globals) serve(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx, err := g.loadIndex(ctx)
	if err != nil {
		return exitError(err, false)
	}
	holder := index.NewHolder(idx)

	if g.app.Watch {
		r, err := watch.New(g.app.Source(), holder, g.loadIndex,
			watch.WithDebounce(g.app.Debounce),
			watch.WithLogger(g.log))
		if err != nil {
			return exitError(err, false)
		}
		go func() {
			if err := r.Run(ctx); err != nil {
				g.log.Error("Watcher stopped: %v", err)
			}
		}()
	}

	g.log.Info("Serving %d resources on stdio", idx.Registry().Len())
	srv := NewServer(holder, render.ParseFormat(g.app.Output), g.log)
	err = srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	g.logStats()
	return err
}

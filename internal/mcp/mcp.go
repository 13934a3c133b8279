// Package mcp provides the gridbench MCP server, registering the
// benchmark tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/gridbench"
	"github.com/deixis/gridbench/internal/config"
	"github.com/deixis/gridbench/internal/descriptor"
	"github.com/deixis/gridbench/internal/executor"
	"github.com/deixis/gridbench/internal/grid"
	"github.com/deixis/gridbench/internal/result"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	cfg    *config.Config
	root   string
	engine *executor.Engine
	store  result.Store
}

// NewServer creates an MCP server with all gridbench tools registered.
func NewServer(cfg *config.Config, root string, engine *executor.Engine, store result.Store) *mcp.Server {
	h := &handler{
		cfg:    cfg,
		root:   root,
		engine: engine,
		store:  store,
	}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "gridbench", Version: gridbench.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "bench_list",
		Description: "List the benchmark runners defined in the runner directory, with their kind and parameter space.",
	}, h.listHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "bench_run",
		Description: `Run benchmark runners across their parameter grids and collect a result table.

Each runner's command is executed once per combination of its parameters.
Parameter overrides replace a runner's declared value lists key-wise.
Returns the invocation ID (for bench_inspect) and the result table path.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "bench_inspect",
		Description: `Return the per-run records of a past invocation.

Use the invocation_id from a bench_run result.`,
	}, h.inspectHandler)

	return s
}

type listParams struct {
	Kind string `json:"kind,omitempty" jsonschema:"Filter by runner kind: timing or quality. Lists all runners when omitted."`
}

func (h *handler) listHandler(ctx context.Context, req *mcp.CallToolRequest, params listParams) (*mcp.CallToolResult, any, error) {
	descs, err := descriptor.LoadDir(h.cfg.RunnerDir(h.root))
	if err != nil {
		return errorResult(fmt.Sprintf("loading runners: %v", err))
	}

	var b strings.Builder
	n := 0
	for _, d := range descs {
		if params.Kind != "" && string(d.Kind) != params.Kind {
			continue
		}
		n++
		fmt.Fprintf(&b, "%s (%s)", d.Name, d.Kind)
		if names := d.Params.Names(); len(names) > 0 {
			fmt.Fprintf(&b, " params: %s", strings.Join(names, ", "))
		}
		if h.cfg.IsDisabled(d.Name) {
			b.WriteString(" [disabled]")
		}
		b.WriteString("\n")
	}
	if n == 0 {
		return textResult("No runners found.")
	}
	return textResult(b.String())
}

type runParams struct {
	Runners []string          `json:"runners,omitempty" jsonschema:"Names of runners to execute. Defaults to every enabled runner."`
	Params  map[string]string `json:"params,omitempty" jsonschema:"Parameter overrides: name to comma-separated value list (e.g. width: 512,1024)."`
	Verbose bool              `json:"verbose,omitempty" jsonschema:"Append each runner's verbose flag to its command."`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	descs, err := descriptor.LoadDir(h.cfg.RunnerDir(h.root))
	if err != nil {
		return errorResult(fmt.Sprintf("loading runners: %v", err))
	}
	descs = selectRunners(descs, params.Runners, h.cfg)
	if len(descs) == 0 {
		return errorResult("no matching runners")
	}

	overrides := h.cfg.DefaultOverrides().Merge(overrideSet(params.Params))

	engine := *h.engine
	engine.Verbose = engine.Verbose || params.Verbose

	records, err := engine.ExecuteAll(ctx, descs, overrides)
	if err != nil {
		return errorResult(fmt.Sprintf("run failed: %v", err))
	}

	completed := time.Now()
	tablePath, err := result.WriteFile(h.cfg.ResultsDir(h.root), records, completed)
	if err != nil {
		return errorResult(fmt.Sprintf("writing result table: %v", err))
	}

	inv := &result.Invocation{
		ID:        uuid.New().String(),
		Completed: completed,
		TablePath: tablePath,
		Records:   records,
	}
	text := formatRun(inv, len(descs))
	if err := h.store.Save(inv); err != nil {
		text += fmt.Sprintf("\nWarning: invocation not stored (%v); bench_inspect will not find it.\n", err)
	}

	return textResult(text)
}

type inspectParams struct {
	InvocationID string `json:"invocation_id" jsonschema:"ID returned by a previous bench_run."`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	inv, err := h.store.Load(params.InvocationID)
	if err != nil {
		return errorResult(fmt.Sprintf("loading invocation: %v", err))
	}
	return textResult(formatInvocation(inv))
}

// selectRunners filters descriptors by the requested names (all enabled
// runners when empty) and drops disabled ones unless named explicitly.
func selectRunners(descs []*descriptor.Descriptor, names []string, cfg *config.Config) []*descriptor.Descriptor {
	if len(names) == 0 {
		var out []*descriptor.Descriptor
		for _, d := range descs {
			if !cfg.IsDisabled(d.Name) {
				out = append(out, d)
			}
		}
		return out
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []*descriptor.Descriptor
	for _, d := range descs {
		if wanted[d.Name] {
			out = append(out, d)
		}
	}
	return out
}

// overrideSet converts a name to comma-separated-values mapping into a
// ParamSet, keys sorted for deterministic grid order.
func overrideSet(params map[string]string) *grid.ParamSet {
	s := grid.NewParamSet()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Add(k, strings.Split(params[k], ","))
	}
	return s
}

func formatRun(inv *result.Invocation, runners int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Executed %d runner(s), %d run(s).\n", runners, len(inv.Records))
	fmt.Fprintf(&b, "Invocation: %s\n", inv.ID)
	if inv.TablePath != "" {
		fmt.Fprintf(&b, "Table: %s\n", inv.TablePath)
	} else {
		b.WriteString("No result table written (no records).\n")
	}
	fmt.Fprintf(&b, "\nInspect with bench_inspect(invocation_id=%q).\n", inv.ID)
	return b.String()
}

func formatInvocation(inv *result.Invocation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invocation %s (%s), %d run(s)\n", inv.ID, inv.Completed.Format(time.RFC3339), len(inv.Records))
	if inv.TablePath != "" {
		fmt.Fprintf(&b, "Table: %s\n", inv.TablePath)
	}
	b.WriteString("\n")
	for _, r := range inv.Records {
		fmt.Fprintf(&b, "%s:", r.Runner)
		for _, m := range r.Measurements {
			fmt.Fprintf(&b, " %s=%g", m.Key, m.Value)
		}
		for _, p := range r.Params {
			fmt.Fprintf(&b, " %s=%s", p.Name, p.Value)
		}
		if r.ExitCode != 0 {
			fmt.Fprintf(&b, " exit=%d", r.ExitCode)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}

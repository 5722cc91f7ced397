/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/altairalabs/componenthost/internal/component"
	"github.com/altairalabs/componenthost/internal/config"
	"github.com/altairalabs/componenthost/internal/dispatcher"
	"github.com/altairalabs/componenthost/internal/engine"
	"github.com/altairalabs/componenthost/internal/lifecycle"
	"github.com/altairalabs/componenthost/internal/metrics"
	"github.com/altairalabs/componenthost/internal/policy"
	"github.com/altairalabs/componenthost/internal/resolver"
	"github.com/altairalabs/componenthost/internal/secrets"
	"github.com/altairalabs/componenthost/internal/storage"
)

func main() {
	if len(os.Args) > 1 {
		runCLI(os.Args[1], os.Args[2:])
		return
	}
	runServe()
}

func newLogger() (*zap.Logger, error) {
	if lvl := os.Getenv("LOG_LEVEL"); lvl == "debug" || lvl == "trace" {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		return cfg.Build()
	}
	return zap.NewProduction()
}

type app struct {
	cfg     *config.Config
	manager *lifecycle.Manager
	disp    *dispatcher.Dispatcher
	metrics *metrics.HostMetrics
	close   func(context.Context)
}

func buildApp(ctx context.Context, zapLog *zap.Logger) (*app, error) {
	log := zapr.NewLogger(zapLog)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	store, err := storage.New(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("opening component storage: %w", err)
	}
	policyStore := policy.NewStore(cfg.StorageRoot, log)
	secretsStore := secrets.NewStore(cfg.SecretsRoot, log)
	res := resolver.New(log, store.DownloadsDir(), cfg.HTTPTimeout, cfg.OCITimeout)

	eng, err := engine.New(ctx, log, filepath.Join(cfg.StorageRoot, ".cache"))
	if err != nil {
		return nil, fmt.Errorf("starting engine: %w", err)
	}

	hostMetrics := metrics.New(metrics.Config{Namespace: "componenthost"})

	manager := lifecycle.New(log, res, store, policyStore, secretsStore, eng, hostEnvAllowlist(), cfg.WarmupConcurrency, hostMetrics)
	disp := dispatcher.New(log, manager, cfg.DisableBuiltinTools)

	return &app{
		cfg:     cfg,
		manager: manager,
		disp:    disp,
		metrics: hostMetrics,
		close:   func(c context.Context) { _ = eng.Close(c) },
	}, nil
}

// hostEnvAllowlist is the set of process environment variables a
// component's environment.allow policy rule may expose into its sandbox;
// values themselves are still filtered per-component by the policy
// document, this is only the set visible to the lookup.
func hostEnvAllowlist() map[string]string {
	allowed := map[string]string{}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				allowed[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return allowed
}

// runServe starts the tool-server entrypoint: an MCP server exposed over
// stdio, with a loopback HTTP server carrying health and Prometheus
// metrics endpoints.
func runServe() {
	zapLog, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zapLog.Sync() }()
	log := zapr.NewLogger(zapLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, zapLog)
	if err != nil {
		log.Error(err, "failed to initialize")
		os.Exit(1)
	}
	defer a.close(context.Background())

	log.Info("starting componenthost",
		"storageRoot", a.cfg.StorageRoot,
		"disableBuiltinTools", a.cfg.DisableBuiltinTools,
		"bindHost", a.cfg.BindHost,
		"port", a.cfg.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	httpServer := &http.Server{
		Addr:              a.cfg.BindHost + ":" + a.cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("health/metrics server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "health/metrics server error")
		}
	}()

	server := mcp.NewServer(&mcp.Implementation{Name: "componenthost", Version: "v1.0.0"}, nil)
	registerBuiltinTools(server, a.disp)

	warmupCtx, warmupCancel := context.WithCancel(ctx)
	defer warmupCancel()
	notify := func() { syncComponentTools(server, a.manager, a.disp) }
	if err := a.manager.WarmUp(warmupCtx, notify); err != nil {
		log.Error(err, "warm-up failed")
	}
	syncComponentTools(server, a.manager, a.disp)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Run(ctx, &mcp.StdioTransport{})
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down...")
	case err := <-serveErr:
		if err != nil {
			log.Error(err, "mcp server exited")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "failed to shutdown health server")
	}
	log.Info("shutdown complete")
}

// rawArgsHandler lets every tool handler -- the fixed built-in set and
// every dynamically discovered component export -- share one signature:
// the dispatcher already speaks raw JSON arguments and returns the wire
// ToolResult shape directly.
func rawArgsHandler(disp *dispatcher.Dispatcher, name string) mcp.ToolHandlerFor[json.RawMessage, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, args json.RawMessage) (*mcp.CallToolResult, any, error) {
		result := disp.Dispatch(ctx, name, args)
		out := &mcp.CallToolResult{IsError: result.IsError}
		for _, c := range result.Content {
			out.Content = append(out.Content, &mcp.TextContent{Text: c.Text})
		}
		return out, result.StructuredContent, nil
	}
}

func registerBuiltinTools(server *mcp.Server, disp *dispatcher.Dispatcher) {
	for _, t := range builtinToolDescriptors() {
		mcp.AddTool(server, t, rawArgsHandler(disp, t.Name))
	}
}

// syncComponentTools adds every tool in the lifecycle manager's current
// component tool index to the MCP server; it is called once at startup
// after warm-up and again each time a background warm-up compile completes.
// It only adds tools: tools of an unloaded component stay registered, and
// loads or unloads made through the dispatcher do not trigger it.
func syncComponentTools(server *mcp.Server, manager *lifecycle.Manager, disp *dispatcher.Dispatcher) {
	for _, schema := range manager.ListTools() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        schema.Name,
			Description: schema.Description,
			InputSchema: anySchema(schema.InputSchema),
		}, rawArgsHandler(disp, schema.Name))
	}
}

func anySchema(schema map[string]any) any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	return schema
}

func builtinToolDescriptors() []*mcp.Tool {
	return []*mcp.Tool{
		{Name: "load-component", Description: "Load a component from a file path, OCI reference, or HTTPS URL."},
		{Name: "unload-component", Description: "Unload a component and remove its on-disk artifacts."},
		{Name: "list-components", Description: "List every known component and its tools."},
		{Name: "get-policy", Description: "Get the attached policy document for a component."},
		{Name: "grant-storage-permission", Description: "Grant a component filesystem access to a URI."},
		{Name: "grant-network-permission", Description: "Grant a component outbound network access to a host."},
		{Name: "grant-environment-variable-permission", Description: "Grant a component access to a named environment variable."},
		{Name: "revoke-storage-permission", Description: "Revoke a component's filesystem access to a URI."},
		{Name: "revoke-network-permission", Description: "Revoke a component's outbound network access to a host."},
		{Name: "revoke-environment-variable-permission", Description: "Revoke a component's access to a named environment variable."},
		{Name: "reset-permission", Description: "Reset a component's policy document to its defaults."},
		{Name: "search-components", Description: "Search the known component catalog by name or description."},
	}
}

// runCLI implements the flag-based admin subcommands that call straight
// into the lifecycle manager and policy store, bypassing the tool-server
// transport entirely. Argument parsing here is deliberately minimal.
func runCLI(subcommand string, args []string) {
	zapLog, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zapLog.Sync() }()

	ctx := context.Background()
	a, err := buildApp(ctx, zapLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.close(ctx)

	switch subcommand {
	case "load":
		fs := flag.NewFlagSet("load", flag.ExitOnError)
		path := fs.String("path", "", "component file path, oci:// reference, or https:// URL")
		_ = fs.Parse(args)
		outcome, err := a.manager.LoadComponent(ctx, *path)
		exitOn(err)
		printJSON(outcome)

	case "unload":
		fs := flag.NewFlagSet("unload", flag.ExitOnError)
		id := fs.String("id", "", "component id")
		_ = fs.Parse(args)
		exitOn(a.manager.UnloadComponent(ctx, component.ID(*id)))
		printJSON(map[string]string{"status": "unloaded"})

	case "list":
		printJSON(a.manager.ListComponentsKnown())

	case "policy":
		fs := flag.NewFlagSet("policy", flag.ExitOnError)
		id := fs.String("id", "", "component id")
		_ = fs.Parse(args)
		info, ok := a.manager.GetPolicyInfo(component.ID(*id))
		if !ok {
			printJSON(map[string]any{"policy": nil})
			return
		}
		printJSON(info)

	case "grant":
		fs := flag.NewFlagSet("grant", flag.ExitOnError)
		id := fs.String("id", "", "component id")
		kind := fs.String("kind", "", "network|storage|environment")
		detailJSON := fs.String("detail", "{}", "JSON-encoded permission detail")
		_ = fs.Parse(args)
		detail := decodeDetail(*detailJSON)
		doc, err := a.manager.GrantPermission(component.ID(*id), policy.Kind(*kind), detail)
		exitOn(err)
		printJSON(doc)

	case "revoke":
		fs := flag.NewFlagSet("revoke", flag.ExitOnError)
		id := fs.String("id", "", "component id")
		kind := fs.String("kind", "", "network|storage|environment")
		detailJSON := fs.String("detail", "{}", "JSON-encoded permission detail")
		_ = fs.Parse(args)
		detail := decodeDetail(*detailJSON)
		var doc *policy.Document
		var err error
		if policy.Kind(*kind) == policy.KindStorage {
			uri, _ := detail["uri"].(string)
			doc, err = a.manager.RevokeStoragePermissionByURI(component.ID(*id), uri)
		} else {
			doc, err = a.manager.RevokePermission(component.ID(*id), policy.Kind(*kind), detail)
		}
		exitOn(err)
		printJSON(doc)

	case "reset":
		fs := flag.NewFlagSet("reset", flag.ExitOnError)
		id := fs.String("id", "", "component id")
		_ = fs.Parse(args)
		exitOn(a.manager.ResetPermission(component.ID(*id)))
		printJSON(map[string]string{"status": "reset"})

	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q (want load|unload|list|policy|grant|revoke|reset)\n", subcommand)
		os.Exit(2)
	}
}

func decodeDetail(raw string) policy.Detail {
	var d policy.Detail
	_ = json.Unmarshal([]byte(raw), &d)
	return d
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error encoding output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// Command taskrouter classifies natural-language tasks and answers them
// directly or through a tool-using reasoning loop.
//
//	taskrouter run [-json] <task>
//	taskrouter classify <task>
//	taskrouter tools
//	taskrouter serve [-addr :8080]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/martinemde/taskrouter/config"
	"github.com/martinemde/taskrouter/httpapi"
	"github.com/martinemde/taskrouter/logs"
	"github.com/martinemde/taskrouter/unifiedllm"
)

var errUsage = errors.New("usage")

const usageText = `usage:
  taskrouter run [-json] <task>     answer one task
  taskrouter classify <task>        show the classification and policy
  taskrouter tools                  list the registered tools
  taskrouter serve [-addr ADDR]     serve the HTTP API
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return 2
	}
	cmd, rest := args[0], args[1:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		fmt.Fprint(stdout, usageText)
		return 0
	}

	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 1
	}
	logger, err := logs.New(logs.Options{Writer: stderr, Level: cfg.Log.Level, Journal: cfg.Log.Journal})
	if err != nil {
		fmt.Fprintln(stderr, "logs:", err)
		return 1
	}

	switch cmd {
	case "run":
		err = runTask(ctx, cfg, logger, rest, stdout)
	case "classify":
		err = classifyTask(cfg, rest, stdout)
	case "tools":
		err = listTools(cfg, stdout)
	case "serve":
		err = serve(ctx, cfg, logger, rest)
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		fmt.Fprint(stderr, usageText)
		return 2
	default:
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
}

func taskArg(args []string) (string, error) {
	task := strings.TrimSpace(strings.Join(args, " "))
	if task == "" {
		return "", fmt.Errorf("%w: a task is required", errUsage)
	}
	return task, nil
}

func runTask(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	task, err := taskArg(fs.Args())
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.orch.Run(ctx, task)
	if res == nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintln(stdout, res.Answer)
	}
	return err
}

func classifyTask(cfg *config.Config, args []string, stdout io.Writer) error {
	task, err := taskArg(args)
	if err != nil {
		return err
	}
	classifier, err := newClassifier(cfg)
	if err != nil {
		return err
	}
	cls := classifier.Classify(task)
	policy := classifier.PolicyFor(cls.Type)
	direct := classifier.ShouldUseDirectResponse(cls)
	tools := "all"
	switch {
	case direct:
		tools = "none"
	case len(policy.AllowedTools) > 0:
		tools = strings.Join(policy.AllowedTools, ", ")
	}
	fmt.Fprintf(stdout, "type:           %s\n", cls.Type)
	fmt.Fprintf(stdout, "confidence:     %.2f\n", cls.Confidence)
	fmt.Fprintf(stdout, "reason:         %s\n", cls.Reason)
	fmt.Fprintf(stdout, "direct:         %t\n", direct)
	fmt.Fprintf(stdout, "tools:          %s\n", tools)
	fmt.Fprintf(stdout, "max iterations: %d\n", policy.MaxIterations)
	fmt.Fprintf(stdout, "temperature:    %.1f\n", policy.Temperature)
	return nil
}

func listTools(cfg *config.Config, stdout io.Writer) error {
	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	for _, d := range reg.List() {
		fmt.Fprintf(stdout, "%-14s %s\n", d.Name, d.Description)
	}
	return nil
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addr := fs.String("addr", cfg.HTTP.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	opts := []httpapi.Option{
		httpapi.WithLogger(logger.With("component", "http")),
		httpapi.WithAllowedOrigins(cfg.HTTP.AllowedOrigins...),
		httpapi.WithEvents(a.emitter.Events()),
	}
	if a.store != nil {
		opts = append(opts, httpapi.WithSessions(a.store))
	}
	srv := httpapi.NewServer(a.orch, opts...)

	logger.Info("serving", "addr", *addr, "provider", cfg.LLM.Provider, "model", cfg.LLM.Model, "tools", a.registry.Names())
	return serveUntilDone(ctx, srv, *addr)
}

// serveUntilDone runs srv until it fails or ctx is cancelled, then shuts it
// down gracefully.
func serveUntilDone(ctx context.Context, srv httpServer, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// timeoutMiddleware bounds each provider call.
func timeoutMiddleware(d time.Duration) unifiedllm.Middleware {
	return func(ctx context.Context, req unifiedllm.Request, next func(context.Context, unifiedllm.Request) (*unifiedllm.Response, error)) (*unifiedllm.Response, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx, req)
	}
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gamma-omg/legal-rag/rag"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg      *Config
	log      *slog.Logger
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		a       app
	)

	root := &cobra.Command{
		Use:          "legal-rag",
		Short:        "Answer questions about legal documents with retrieval-augmented generation",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cfgPath)
			if err != nil {
				return err
			}

			logger, closeLog, err := newLogger(cfg)
			if err != nil {
				return err
			}

			a = app{cfg: cfg, log: logger, closeLog: closeLog}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.closeLog()
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "cfg/config.yaml", "Configuration file")
	root.AddCommand(
		newEnsureCmd(&a),
		newAskCmd(&a),
		newRetrieveCmd(&a),
		newResetCmd(&a),
		newServeCmd(&a),
		newWatchCmd(&a),
	)

	return root
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newEnsureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Build the index, or validate and reuse the persisted one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			svc, mgr, err := initService(a.cfg, a.log, false)
			if err != nil {
				return err
			}
			defer mgr.Close()

			idx, err := svc.EnsureReady(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "index %s ready: %d passages from %d documents (%s, %d dimensions)\n",
				idx.Collection, idx.Count, len(idx.Sources), idx.Model, idx.Dimension)
			return nil
		},
	}
}

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question, or chat interactively when no question is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			svc, mgr, err := initService(a.cfg, a.log, true)
			if err != nil {
				return err
			}
			defer mgr.Close()

			if _, err := svc.EnsureReady(ctx); err != nil {
				return err
			}

			if len(args) == 1 {
				ans, err := svc.Ask(ctx, args[0])
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), formatAnswer(ans))
				return nil
			}

			return chat(ctx, svc, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

type chatService interface {
	Ask(ctx context.Context, query string) (rag.Answer, error)
	Reset(ctx context.Context) error
	EnsureReady(ctx context.Context) (*rag.Index, error)
}

// chat answers questions line by line until "exit" or end of input. "reset"
// rebuilds the index from scratch.
func chat(ctx context.Context, svc chatService, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Ask a question about your legal rights. Type 'reset' to rebuild the index or 'exit' to quit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "reset":
			if err := svc.Reset(ctx); err != nil {
				return err
			}
			if _, err := svc.EnsureReady(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "The index was rebuilt.")
			continue
		}

		ans, err := svc.Ask(ctx, line)
		if errors.Is(err, context.Canceled) {
			return err
		}
		if err != nil {
			fmt.Fprintln(out, "Sorry, I could not answer that right now. Please try again in a moment.")
			continue
		}

		fmt.Fprintln(out, formatAnswer(ans))
	}
}

func newRetrieveCmd(a *app) *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "retrieve [query]",
		Short: "Print the passages most relevant to a query as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			svc, mgr, err := initService(a.cfg, a.log, false)
			if err != nil {
				return err
			}
			defer mgr.Close()

			if _, err := svc.EnsureReady(ctx); err != nil {
				return err
			}

			if !cmd.Flags().Changed("results") {
				k = a.cfg.Results
			}

			res, err := svc.Retrieve(ctx, args[0], k)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range res {
				err := enc.Encode(struct {
					Score float32 `json:"score"`
					File  string  `json:"file"`
					Page  int     `json:"page"`
					Chunk int     `json:"chunk"`
					Text  string  `json:"text"`
				}{r.Score, r.Passage.Document, r.Passage.Page, r.Passage.Index, r.Passage.Text})
				if err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "results", "k", 0, "number of passages (default: the results setting)")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the persisted index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			svc, mgr, err := initService(a.cfg, a.log, false)
			if err != nil {
				return err
			}
			defer mgr.Close()

			if err := svc.Reset(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "index %s removed\n", a.cfg.Collection)
			return nil
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ask and retrieve tools over MCP (SSE)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			svc, mgr, err := initService(a.cfg, a.log, true)
			if err != nil {
				return err
			}
			defer mgr.Close()

			if _, err := svc.EnsureReady(ctx); err != nil {
				return err
			}

			if watch {
				if err := a.watcher(svc).Watch(ctx); err != nil {
					return err
				}
			}

			if a.cfg.MetricsAddr != "" {
				go a.serveMetrics(ctx)
			}

			srv := NewRagServer(svc, a.cfg.Results)
			sse := server.NewSSEServer(srv, server.WithBaseURL(fmt.Sprintf("http://%s", a.cfg.ServerAddr)))

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := sse.Shutdown(shutdownCtx); err != nil {
					a.log.Error("failed to stop mcp server", "err", err)
				}
			}()

			a.log.Info("mcp server listening", "addr", a.cfg.ServerAddr)
			if err := sse.Start(a.cfg.ServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "rebuild the index when documents change")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the index in sync with the document sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			svc, mgr, err := initService(a.cfg, a.log, false)
			if err != nil {
				return err
			}
			defer mgr.Close()

			if _, err := svc.EnsureReady(ctx); err != nil {
				return err
			}

			if err := a.watcher(svc).Watch(ctx); err != nil {
				return err
			}
			if a.cfg.MetricsAddr != "" {
				go a.serveMetrics(ctx)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s, press Ctrl+C to stop\n", strings.Join(a.cfg.Docs, ", "))
			<-ctx.Done()
			return nil
		},
	}
}

func (a *app) watcher(svc *rag.Service) *DocWatcher {
	return &DocWatcher{
		log:              a.log,
		sources:          a.cfg.Docs,
		mergeEventsDelay: time.Duration(a.cfg.MergeEventsMs) * time.Millisecond,
		index:            svc,
	}
}

func (a *app) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	a.log.Info("metrics server listening", "addr", a.cfg.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Error("metrics server stopped", "err", err)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/greendrive/impactboard"
	"github.com/greendrive/impactboard/pkg/auth"
	"github.com/greendrive/impactboard/pkg/collab"
)

type watchOptions struct {
	metricsAddr    string
	refresh        bool
	broadcastEdits bool
}

func newWatchCmd(a *app) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch <driveId>",
		Short: "Join a board and log presence, focus and field changes until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("broadcast-edits") {
				a.cfg.BroadcastEdits = opts.broadcastEdits
			}
			return runWatch(cmd.Context(), a, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", true, "refresh the credential before it expires")
	cmd.Flags().BoolVar(&opts.broadcastEdits, "broadcast-edits", false, "emit local edits as they happen")
	return cmd
}

func runWatch(ctx context.Context, a *app, driveID string, opts watchOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	g, gctx := errgroup.WithContext(ctx)
	finished := make(chan struct{})
	var finishOnce sync.Once

	onChange := func(c collab.Change) {
		a.logger.Info("board changed", "kind", c.Kind.String(), "field", c.Field, "user_id", c.UserID)
		if c.Kind == collab.ChangeFinalized {
			finishOnce.Do(func() { close(finished) })
		}
	}

	s, err := impactboard.Open(gctx, a.cfg, driveID,
		impactboard.WithLogger(a.logger),
		impactboard.WithMetrics(reg),
		impactboard.WithOnChange(onChange),
	)
	if err != nil {
		return err
	}

	if s.IsFinalized() {
		a.logger.Info("board is finalized", "document_id", driveID, "summary", s.Summary())
		return s.Close(context.Background())
	}

	if opts.refresh {
		r := auth.NewRefresher(auth.NewClient(a.cfg.APIURL), a.cfg.Token, nil, a.logger)
		r.OnRefresh = s.SetToken
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	if opts.metricsAddr != "" {
		router := mux.NewRouter()
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-finished:
			a.logger.Info("board was finalized, leaving", "document_id", driveID)
			stop()
		}
		return nil
	})

	err = g.Wait()
	return errors.Join(err, s.Close(context.Background()))
}

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/info757/estimai-cli/internal/review"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve merged review data over HTTP",
	Long:  "Runs a local read-only server exposing merged review rows, cost totals, and pipeline run history for dashboards.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		client := initClient()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/projects/{projectID}/review/{stage}", func(w http.ResponseWriter, req *http.Request) {
			projectID := chi.URLParam(req, "projectID")
			stage, err := parseStage(chi.URLParam(req, "stage"))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
				return
			}

			session := review.NewSession(client, projectID, stage, "",
				review.WithRetryConfig(retryConfig()))
			if err := session.Load(req.Context()); err != nil {
				zap.L().Error("review load failed",
					zap.String("project", projectID),
					zap.String("stage", string(stage)),
					zap.Error(err),
				)
				writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "backend unavailable"})
				return
			}

			rows := session.View()
			links, err := quantityLinks(req.Context(), client, projectID, stage, rows)
			if err != nil {
				writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "backend unavailable"})
				return
			}

			writeJSON(w, http.StatusOK, map[string]any{
				"project_id":      projectID,
				"stage":           stage,
				"rows":            rows,
				"overridden_rows": review.OverriddenCount(rows),
				"totals":          session.Totals(cfg.Markup, links),
			})
		})

		r.Get("/projects/{projectID}/runs", func(w http.ResponseWriter, req *http.Request) {
			runs, err := st.ListRuns(req.Context(), chi.URLParam(req, "projectID"), 50)
			if err != nil {
				zap.L().Error("list runs failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "store error"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

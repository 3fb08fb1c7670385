package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/api"
	"github.com/balaji-balu/offsetup/internal/api/handlers"
	"github.com/balaji-balu/offsetup/internal/config"
	"github.com/balaji-balu/offsetup/internal/journal"
	"github.com/balaji-balu/offsetup/internal/metrics"
	"github.com/balaji-balu/offsetup/internal/planner"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve journaled runs, planning and metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := journal.Open(settings.Journal.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		priority, err := config.ParsePriority(settings.InstallPriority)
		if err != nil {
			return err
		}
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		h := &handlers.Handlers{
			Runs:    store,
			Detect:  detector(settings).Detect,
			Options: planner.Options{InstallPriority: priority, DownloadDir: settings.Download.Directory},
			Dir:     dir,
		}

		if !settings.Debug {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := &http.Server{
			Addr:              settings.Serve.Addr,
			Handler:           api.NewRouter(h, metrics.New().Handler(), log),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			log.Info("http server started", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
			close(errc)
		}()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
}

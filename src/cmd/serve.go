package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"livepush/src/protocol/httpflv"
	"livepush/src/protocol/rtmp"
)

const SHUTDOWN_TIMEOUT = 5 * time.Second

func NewServeCommand() *cobra.Command {
	var rtmpAddr, httpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the RTMP ingest server with HTTP-FLV playback",
		Long: `serve accepts RTMP publishers and plays them back over HTTP-FLV at
http://<http-addr>/<app>/<name>.flv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rtmpAddr == "" {
				rtmpAddr = conf.Serve.RTMPAddr
			}
			if httpAddr == "" {
				httpAddr = conf.Serve.HTTPAddr
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runServe(ctx, rtmpAddr, httpAddr)
		},
	}
	cmd.Flags().StringVar(&rtmpAddr, "rtmp-addr", "", "rtmp listen address (default serve.rtmp_addr)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "http-flv listen address (default serve.http_addr)")
	return cmd
}

func runServe(ctx context.Context, rtmpAddr, httpAddr string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rtmpSrv := rtmp.NewServer(rtmpAddr)
	httpSrv := &http.Server{
		Addr:    httpAddr,
		Handler: httpflv.NewHTTPFLVServer(rtmpSrv),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := rtmpSrv.ListenAndServe(); err != nil && !errors.Is(err, rtmp.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logrus.Info("http-flv server listening on ", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return pkgerrors.Wrap(err, "http-flv server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logrus.Info("shutting down")
		// players end once their publisher goes away
		if err := rtmpSrv.Close(); err != nil {
			logrus.Warning("close rtmp server failed, err: ", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

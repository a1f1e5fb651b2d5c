package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/tracing"
	"github.com/loggy-dev/loggy-go/pkg/loggy"
)

func newDemoCmd(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run an instrumented sample service",
		Long: `Run a small Gin service instrumented with the SDK. Configure the
destination with LOGGY_TOKEN and LOGGY_ENDPOINT (or --config), then call
/hello/<name>, /chain/<name> or /fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Service.Name == "unknown_service" {
				cfg.Service.Name = "loggy-demo"
			}
			logger, err := g.logger(cfg)
			if err != nil {
				return err
			}

			client, err := loggy.New(*cfg, loggy.WithLogger(logger))
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           newDemoRouter(client, "http://"+localAddr(addr)),
				ReadHeaderTimeout: 10 * time.Second,
			}
			logger.Info("Starting demo service",
				zap.String("addr", addr),
				zap.Bool("remote", cfg.Remote.Token != ""),
			)

			serve := func() error {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			}
			shutdown := func(ctx context.Context) error {
				return errors.Join(srv.Shutdown(ctx), client.Shutdown(ctx))
			}
			return runUntilSignal(logger, serve, shutdown)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}

// localAddr turns a listen address into one the demo can call itself on.
func localAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}

func newDemoRouter(client *loggy.Client, self string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(client.Middleware()...)

	tracer := client.Tracer()
	downstream := resty.New().SetBaseURL(self).SetTimeout(5 * time.Second)

	router.GET("/metrics", client.MetricsHandler())

	router.GET("/hello/:name", func(c *gin.Context) {
		ctx := c.Request.Context()
		greeting, err := loggy.WithSpan(ctx, tracer, "compose-greeting", func(ctx context.Context) (string, error) {
			tracing.SpanFromContext(ctx).SetAttribute("greeting.name", c.Param("name"))
			return fmt.Sprintf("hello, %s", c.Param("name")), nil
		})
		if err != nil {
			_ = c.Error(err)
			c.Status(http.StatusInternalServerError)
			return
		}
		client.Log(ctx, zapcore.InfoLevel, "greeted", map[string]any{"name": c.Param("name")})
		c.JSON(http.StatusOK, gin.H{"message": greeting})
	})

	// chain calls /hello over HTTP so the two server spans share a trace
	router.GET("/chain/:name", func(c *gin.Context) {
		ctx, span := tracer.StartSpan(c.Request.Context(), "call-hello", loggy.WithSpanKind(loggy.SpanKindClient))
		defer span.End()

		req := downstream.R().SetContext(ctx)
		tracer.Inject(ctx, tracing.HeaderCarrier(req.Header))
		resp, err := req.Get("/hello/" + c.Param("name"))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(loggy.StatusError, err.Error())
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		span.SetAttribute("http.status_code", resp.StatusCode())
		c.Data(resp.StatusCode(), "application/json", resp.Body())
	})

	router.GET("/fail", func(c *gin.Context) {
		err := errors.New("demo failure")
		client.Log(c.Request.Context(), zapcore.ErrorLevel, "request failed", map[string]any{"error": err.Error()})
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	})

	return router
}

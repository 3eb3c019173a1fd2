// Package statusserver exposes an optional HTTP status endpoint for a
// long-running build (a full-corpus index build can take hours), so
// an operator can poll progress without tailing logs. Three read-only
// routes: /healthz, /stats, and Prometheus /metrics.
package statusserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Progress is the mutable build state the server reports; the caller
// updates it as files complete.
type Progress struct {
	mu             sync.RWMutex
	FilesTotal     int
	FilesDone      int
	FilesFailed    int
	LandmarksTotal int64
	StartedAt      time.Time
}

// Snapshot returns a point-in-time copy safe to serialize.
func (p *Progress) Snapshot() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return map[string]any{
		"files_total":     p.FilesTotal,
		"files_done":      p.FilesDone,
		"files_failed":    p.FilesFailed,
		"landmarks_total": p.LandmarksTotal,
		"elapsed_seconds": time.Since(p.StartedAt).Seconds(),
	}
}

// Add accumulates one file's outcome.
func (p *Progress) Add(done bool, failed bool, landmarks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if done {
		p.FilesDone++
	}
	if failed {
		p.FilesFailed++
	}
	p.LandmarksTotal += int64(landmarks)
}

// New builds the Gin engine. tracingEnabled adds otelgin
// instrumentation; both are off by default for a bare CLI run.
func New(progress *Progress, tracingEnabled bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET"}
	r.Use(cors.New(corsConfig))

	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	if tracingEnabled {
		r.Use(otelgin.Middleware("soundmark"))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, progress.Snapshot())
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Serve runs the engine on addr until ctx is canceled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, engine *gin.Engine) error {
	srv := &http.Server{Addr: addr, Handler: engine}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

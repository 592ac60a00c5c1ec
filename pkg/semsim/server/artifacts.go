package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jellydator/ttlcache/v3"

	"github.com/ukaji3/semsim-go/pkg/semsim/logging"
)

// Artifacts tracks result files available for download. Files are deleted
// from disk when their entry expires, and a periodic sweep removes any
// unregistered result file older than the TTL.
type Artifacts struct {
	dir    string
	ttl    time.Duration
	cache  *ttlcache.Cache[string, string]
	logger *log.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewArtifacts starts a registry for files under dir that live for ttl and
// sweeps dir every interval. A non-positive interval disables the sweep loop.
func NewArtifacts(dir string, ttl, interval time.Duration, logger *log.Logger) *Artifacts {
	logger = logging.OrDiscard(logger)
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	a := &Artifacts{dir: dir, ttl: ttl, cache: c, logger: logger, stop: make(chan struct{})}
	c.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, string]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		if err := os.Remove(item.Value()); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove expired artifact", "path", item.Value(), "err", err)
			return
		}
		logger.Info("artifact expired", "name", item.Key())
	})
	go c.Start()
	if interval > 0 {
		a.wg.Add(1)
		go a.sweepLoop(interval)
	}
	return a
}

func (a *Artifacts) sweepLoop(interval time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case now := <-ticker.C:
			n, err := a.Sweep(now)
			if err != nil {
				a.logger.Warn("artifact sweep failed", "err", err)
			} else if n > 0 {
				a.logger.Info("removed stale artifacts", "count", n)
			}
		}
	}
}

// Close stops the expiration and sweep loops. Registered files stay on disk.
func (a *Artifacts) Close() {
	close(a.stop)
	a.wg.Wait()
	a.cache.Stop()
}

// Register makes the file name (relative to the artifact directory) downloadable.
func (a *Artifacts) Register(name string) {
	a.cache.Set(name, filepath.Join(a.dir, name), ttlcache.DefaultTTL)
}

// Lookup returns the path of a registered, unexpired artifact.
func (a *Artifacts) Lookup(name string) (string, bool) {
	item := a.cache.Get(name)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Sweep removes result files in the artifact directory older than the TTL
// and returns how many were deleted.
func (a *Artifacts) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".xlsx") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < a.ttl {
			continue
		}
		if err := os.Remove(filepath.Join(a.dir, e.Name())); err != nil {
			a.logger.Warn("failed to remove stale artifact", "name", e.Name(), "err", err)
			continue
		}
		removed++
	}
	return removed, nil
}

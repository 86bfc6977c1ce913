package catalog

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/dist-s1-trigger/pkg/logging"
)

func logCatalog(log zerolog.Logger, msg string, c *Catalog, elapsed time.Duration, cachePath string) {
	st := c.Stats()
	ev := logging.PhaseComplete(log, "load_catalog", elapsed).
		Count("rows", st.Rows).
		Count("tiles", st.Tiles).
		Count("products", st.Products).
		Count("bursts", st.Bursts)
	if cachePath != "" {
		ev.Str("cache", cachePath)
	}
	ev.Log(msg)
}

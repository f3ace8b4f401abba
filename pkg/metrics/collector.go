package metrics

import (
	"time"

	"github.com/ngas-archive/ngas/pkg/catalog"
	"github.com/ngas-archive/ngas/pkg/log"
)

// Collector periodically refreshes the catalog gauges from the store.
type Collector struct {
	store  catalog.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store catalog.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	logger := log.WithComponent("metrics")

	disks, err := c.store.ListDisks()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to collect disk metrics")
		return
	}
	var open, completed float64
	var bytesStored int64
	for _, d := range disks {
		if d.Completed {
			completed++
		} else {
			open++
		}
		bytesStored += d.BytesStored
	}
	DisksTotal.WithLabelValues("open").Set(open)
	DisksTotal.WithLabelValues("completed").Set(completed)
	BytesStoredTotal.Set(float64(bytesStored))

	files, err := c.store.ListFiles()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to collect file metrics")
		return
	}
	FilesTotal.Set(float64(len(files)))
}

package engine

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports pebble metrics for a set of named databases.
type Collector struct {
	dbs map[string]*pebble.DB

	compactionCount         *prometheus.Desc
	compactionEstimatedDebt *prometheus.Desc
	memtableSize            *prometheus.Desc
	memtableCount           *prometheus.Desc
	walFiles                *prometheus.Desc
	walSize                 *prometheus.Desc
	diskUsage               *prometheus.Desc
}

// NewCollector builds a collector labelling each database by its map key.
func NewCollector(dbs map[string]*pebble.DB) *Collector {
	labels := []string{"db"}
	return &Collector{
		dbs: dbs,

		compactionCount: prometheus.NewDesc(
			"meowstore_pebble_compaction_count_total",
			"Total number of compactions performed",
			labels, nil,
		),
		compactionEstimatedDebt: prometheus.NewDesc(
			"meowstore_pebble_compaction_estimated_debt_bytes",
			"Estimated number of bytes that need to be compacted to reach a stable state",
			labels, nil,
		),
		memtableSize: prometheus.NewDesc(
			"meowstore_pebble_memtable_size_bytes",
			"Current size of the memtable in bytes",
			labels, nil,
		),
		memtableCount: prometheus.NewDesc(
			"meowstore_pebble_memtable_count",
			"Current count of memtables",
			labels, nil,
		),
		walFiles: prometheus.NewDesc(
			"meowstore_pebble_wal_files",
			"Number of live WAL files",
			labels, nil,
		),
		walSize: prometheus.NewDesc(
			"meowstore_pebble_wal_size_bytes",
			"Size of live WAL data in bytes",
			labels, nil,
		),
		diskUsage: prometheus.NewDesc(
			"meowstore_pebble_disk_usage_bytes",
			"Total disk space used by the database",
			labels, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.compactionCount
	ch <- c.compactionEstimatedDebt
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walFiles
	ch <- c.walSize
	ch <- c.diskUsage
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, db := range c.dbs {
		m := db.Metrics()
		ch <- prometheus.MustNewConstMetric(c.compactionCount, prometheus.CounterValue, float64(m.Compact.Count), name)
		ch <- prometheus.MustNewConstMetric(c.compactionEstimatedDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt), name)
		ch <- prometheus.MustNewConstMetric(c.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size), name)
		ch <- prometheus.MustNewConstMetric(c.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count), name)
		ch <- prometheus.MustNewConstMetric(c.walFiles, prometheus.GaugeValue, float64(m.WAL.Files), name)
		ch <- prometheus.MustNewConstMetric(c.walSize, prometheus.GaugeValue, float64(m.WAL.Size), name)
		ch <- prometheus.MustNewConstMetric(c.diskUsage, prometheus.GaugeValue, float64(m.DiskSpaceUsage()), name)
	}
}

package report

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srodi/tabmem/pkg/types"
)

// WriteTextfile writes results in the Prometheus text format, ready for the
// node_exporter textfile collector.
func WriteTextfile(path string, results []types.TrialResult) error {
	labels := []string{"browser", "tabs"}
	baseline := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tabmem_baseline_mb",
		Help: "Resident memory of the idle browser process tree in MB.",
	}, labels)
	total := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tabmem_total_mb",
		Help: "Resident memory of the browser process tree with all tabs open in MB.",
	}, labels)
	perTab := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tabmem_per_tab_mb",
		Help: "Resident memory added per open tab in MB.",
	}, labels)

	reg := prometheus.NewRegistry()
	reg.MustRegister(baseline, total, perTab)
	for _, r := range results {
		lv := []string{string(r.Browser), strconv.Itoa(r.Tabs)}
		baseline.WithLabelValues(lv...).Set(r.BaselineMB)
		total.WithLabelValues(lv...).Set(r.TotalMB)
		perTab.WithLabelValues(lv...).Set(r.PerTabMB)
	}
	return prometheus.WriteToTextfile(path, reg)
}

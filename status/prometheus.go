package status

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Exporter mirrors the status taxonomy's total counters as Prometheus
// gauges, one per (entity, kind) pair, for operators who prefer
// scraping over polling get_*_status. Optional: nothing in the
// reliability/match/rhc path depends on it being registered.
type Exporter struct {
	entity string // a stable label identifying the owning writer/reader

	matched           *prometheus.GaugeVec
	livelinessLost    prometheus.Gauge
	livelinessChanged *prometheus.GaugeVec
	incompatibleQoS   *prometheus.GaugeVec
	sampleRejected    prometheus.Gauge
	sampleLost        prometheus.Gauge
	deadlineMissed    *prometheus.GaugeVec
	inconsistentTopic prometheus.Gauge
}

// NewExporter creates an Exporter labeling every metric with entity
// (typically a GUID string) and registers its collectors with reg.
func NewExporter(reg prometheus.Registerer, entity string) *Exporter {
	e := &Exporter{
		entity: entity,
		matched: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meridian",
			Name:      "matched_total",
			Help:      "PUBLICATION_MATCHED / SUBSCRIPTION_MATCHED total_count.",
		}, []string{"entity", "role"}),
		livelinessLost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "meridian",
			Name:        "liveliness_lost_total",
			Help:        "LIVELINESS_LOST total_count.",
			ConstLabels: prometheus.Labels{"entity": entity},
		}),
		livelinessChanged: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meridian",
			Name:      "liveliness_changed_count",
			Help:      "LIVELINESS_CHANGED alive/not-alive current counts.",
		}, []string{"entity", "state"}),
		incompatibleQoS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meridian",
			Name:      "incompatible_qos_total",
			Help:      "OFFERED/REQUESTED_INCOMPATIBLE_QOS total_count.",
		}, []string{"entity", "role"}),
		sampleRejected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "meridian",
			Name:        "sample_rejected_total",
			Help:        "SAMPLE_REJECTED total_count.",
			ConstLabels: prometheus.Labels{"entity": entity},
		}),
		sampleLost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "meridian",
			Name:        "sample_lost_total",
			Help:        "SAMPLE_LOST total_count.",
			ConstLabels: prometheus.Labels{"entity": entity},
		}),
		deadlineMissed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meridian",
			Name:      "deadline_missed_total",
			Help:      "OFFERED/REQUESTED_DEADLINE_MISSED total_count.",
		}, []string{"entity", "role"}),
		inconsistentTopic: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "meridian",
			Name:        "inconsistent_topic_total",
			Help:        "INCONSISTENT_TOPIC total_count.",
			ConstLabels: prometheus.Labels{"entity": entity},
		}),
	}
	reg.MustRegister(e.matched, e.livelinessLost, e.livelinessChanged,
		e.incompatibleQoS, e.sampleRejected, e.sampleLost, e.deadlineMissed,
		e.inconsistentTopic)
	return e
}

// Observe snapshots the counters of st without clearing any change
// field or active bit (get_*/take_status remain the only way the API
// clears those); intended to be called on a scrape-driven timer.
func (x *Exporter) Observe(st *EntityStatus) {
	st.mu.Lock()
	pub := st.matched
	sub := st.matched
	live := st.livelinessChanged
	lost := st.livelinessLost
	offeredQoS := st.offeredIncompatible
	requestedQoS := st.requestedIncompatible
	rejected := st.sampleRejected
	samplesLost := st.sampleLost
	offeredDL := st.offeredDeadlineMissed
	requestedDL := st.reqDeadlineMissed
	topic := st.inconsistentTopic
	st.mu.Unlock()

	x.matched.WithLabelValues(x.entity, "publication").Set(float64(pub.TotalCount))
	x.matched.WithLabelValues(x.entity, "subscription").Set(float64(sub.TotalCount))
	x.livelinessLost.Set(float64(lost.TotalCount))
	x.livelinessChanged.WithLabelValues(x.entity, "alive").Set(float64(live.AliveCount))
	x.livelinessChanged.WithLabelValues(x.entity, "not_alive").Set(float64(live.NotAliveCount))
	x.incompatibleQoS.WithLabelValues(x.entity, "offered").Set(float64(offeredQoS.TotalCount))
	x.incompatibleQoS.WithLabelValues(x.entity, "requested").Set(float64(requestedQoS.TotalCount))
	x.sampleRejected.Set(float64(rejected.TotalCount))
	x.sampleLost.Set(float64(samplesLost.TotalCount))
	x.deadlineMissed.WithLabelValues(x.entity, "offered").Set(float64(offeredDL.TotalCount))
	x.deadlineMissed.WithLabelValues(x.entity, "requested").Set(float64(requestedDL.TotalCount))
	x.inconsistentTopic.Set(float64(topic.TotalCount))
}

package release

import (
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teranos/slice/closure"
	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/writer"
)

// Stats summarises one run: the closure numbers, the change records and
// what the writer did. Data-integrity and schema-drift counts make up the
// run's QA stream.
type Stats struct {
	RunID   string
	Release int

	Roots              int
	Instances          int
	PerClass           map[string]int
	GatedEvents        int
	DanglingReferences int
	UnknownClasses     int
	SatelliteAdditions int
	SourceRoundTrips   int

	ChangeRecords int

	Written          int
	Deferred         int
	PrunedReferences int
	SchemaDrift      int

	ExtractDuration time.Duration
	CommitDuration  time.Duration
	Duration        time.Duration
}

func (s *Stats) addClosure(cs closure.Stats, perClass map[string]int) {
	s.Roots = cs.Roots
	s.Instances = cs.Instances
	s.PerClass = perClass
	s.GatedEvents = cs.GatedEvents
	s.DanglingReferences = cs.DanglingReferences
	s.UnknownClasses = cs.UnknownClasses
	s.SatelliteAdditions = cs.SatelliteAdditions
	s.PrunedReferences = cs.PrunedReferences
	s.ExtractDuration = cs.Duration
}

func (s *Stats) addCommit(res *writer.Result) {
	s.Written = res.Written
	s.Deferred = res.Deferred
	s.PrunedReferences += res.PrunedReferences
	s.SchemaDrift = res.SchemaDrift
	s.CommitDuration = res.Duration
}

// Rows returns the summary as label/value pairs in display order.
func (s *Stats) Rows() [][2]string {
	rows := [][2]string{
		{"Run", s.RunID},
		{"Release", strconv.Itoa(s.Release)},
		{"Roots", strconv.Itoa(s.Roots)},
		{"Instances", strconv.Itoa(s.Instances)},
		{"Gated events", strconv.Itoa(s.GatedEvents)},
		{"Dangling references", strconv.Itoa(s.DanglingReferences)},
		{"Unknown classes", strconv.Itoa(s.UnknownClasses)},
		{"Satellite additions", strconv.Itoa(s.SatelliteAdditions)},
		{"Change records", strconv.Itoa(s.ChangeRecords)},
		{"Written", strconv.Itoa(s.Written)},
		{"Deferred references", strconv.Itoa(s.Deferred)},
		{"Pruned references", strconv.Itoa(s.PrunedReferences)},
		{"Schema drift", strconv.Itoa(s.SchemaDrift)},
		{"Duration", s.Duration.Round(time.Millisecond).String()},
	}
	classes := make([]string, 0, len(s.PerClass))
	for c := range s.PerClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		rows = append(rows, [2]string{"  " + c, strconv.Itoa(s.PerClass[c])})
	}
	return rows
}

// gauges renders the stats into a fresh registry.
func (s *Stats) gauges() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"release": strconv.Itoa(s.Release)}

	gauge := func(name, help string, v float64) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "slice",
			Subsystem:   "release",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		g.Set(v)
		reg.MustRegister(g)
	}
	gauge("roots", "Root events listed for the release", float64(s.Roots))
	gauge("instances", "Instances in the extracted slice", float64(s.Instances))
	gauge("gated_events", "Events excluded because they are not flagged for release", float64(s.GatedEvents))
	gauge("dangling_references", "References to keys absent from the source store", float64(s.DanglingReferences))
	gauge("pruned_references", "References removed before writing", float64(s.PrunedReferences))
	gauge("schema_drift", "Attribute values skipped because the target schema lacks them", float64(s.SchemaDrift))
	gauge("change_records", "Instances with a non-empty change set", float64(s.ChangeRecords))
	gauge("written", "Instances written to the target", float64(s.Written))
	gauge("duration_seconds", "Wall time of the run", s.Duration.Seconds())
	gauge("last_success_timestamp_seconds", "Unix time the run finished", float64(time.Now().Unix()))

	perClass := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   "slice",
		Subsystem:   "release",
		Name:        "class_instances",
		Help:        "Instances in the extracted slice per class",
		ConstLabels: labels,
	}, []string{"class"})
	for c, n := range s.PerClass {
		perClass.WithLabelValues(c).Set(float64(n))
	}
	reg.MustRegister(perClass)
	return reg
}

// WriteTextfile writes the stats as Prometheus gauges for the node-exporter
// textfile collector.
func (s *Stats) WriteTextfile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, s.gauges()), "write metrics to %s", path)
}

package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	diagnosesLocal    atomic.Int64
	diagnosesExternal atomic.Int64
	scorerFallbacks   atomic.Int64

	triageEmergency atomic.Int64
	triageUrgent    atomic.Int64
	triageRoutine   atomic.Int64
	triageSelfCare  atomic.Int64

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	eventsPublished atomic.Int64
	eventsFailed    atomic.Int64
	alertsRecorded  atomic.Int64

	droppedSymptoms atomic.Int64
	invalidRequests atomic.Int64
)

// ObserveDiagnosis counts one served diagnosis by scorer source and triage
// level.
func ObserveDiagnosis(source, level string) {
	if source == "external" {
		diagnosesExternal.Add(1)
	} else {
		diagnosesLocal.Add(1)
	}
	ObserveTriage(level)
}

func ObserveTriage(level string) {
	switch level {
	case "emergency":
		triageEmergency.Add(1)
	case "urgent_24h":
		triageUrgent.Add(1)
	case "routine_consultation":
		triageRoutine.Add(1)
	case "self_care":
		triageSelfCare.Add(1)
	}
}

func ObserveScorerFallback() { scorerFallbacks.Add(1) }

func ObserveCache(hit bool) {
	if hit {
		cacheHits.Add(1)
		return
	}
	cacheMisses.Add(1)
}

func ObserveEventPublish(err error) {
	if err != nil {
		eventsFailed.Add(1)
		return
	}
	eventsPublished.Add(1)
}

func ObserveAlertRecorded() { alertsRecorded.Add(1) }

func ObserveDroppedSymptoms(n int) { droppedSymptoms.Add(int64(n)) }

func ObserveInvalidRequest() { invalidRequests.Add(1) }

// Reset zeroes every counter.
func Reset() {
	for _, c := range []*atomic.Int64{
		&diagnosesLocal, &diagnosesExternal, &scorerFallbacks,
		&triageEmergency, &triageUrgent, &triageRoutine, &triageSelfCare,
		&cacheHits, &cacheMisses,
		&eventsPublished, &eventsFailed, &alertsRecorded,
		&droppedSymptoms, &invalidRequests,
	} {
		c.Store(0)
	}
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP triage_diagnoses_total Number of diagnoses served, by scorer.\n")
	fmt.Fprintf(w, "# TYPE triage_diagnoses_total counter\n")
	fmt.Fprintf(w, "triage_diagnoses_total{source=\"local\"} %d\n", diagnosesLocal.Load())
	fmt.Fprintf(w, "triage_diagnoses_total{source=\"external\"} %d\n", diagnosesExternal.Load())

	fmt.Fprintf(w, "# HELP triage_scorer_fallbacks_total Number of times the external scorer was skipped or failed.\n")
	fmt.Fprintf(w, "# TYPE triage_scorer_fallbacks_total counter\n")
	fmt.Fprintf(w, "triage_scorer_fallbacks_total %d\n", scorerFallbacks.Load())

	fmt.Fprintf(w, "# HELP triage_level_total Number of triage classifications, by level.\n")
	fmt.Fprintf(w, "# TYPE triage_level_total counter\n")
	fmt.Fprintf(w, "triage_level_total{level=\"emergency\"} %d\n", triageEmergency.Load())
	fmt.Fprintf(w, "triage_level_total{level=\"urgent_24h\"} %d\n", triageUrgent.Load())
	fmt.Fprintf(w, "triage_level_total{level=\"routine_consultation\"} %d\n", triageRoutine.Load())
	fmt.Fprintf(w, "triage_level_total{level=\"self_care\"} %d\n", triageSelfCare.Load())

	fmt.Fprintf(w, "# HELP triage_result_cache_total Result cache lookups, by outcome.\n")
	fmt.Fprintf(w, "# TYPE triage_result_cache_total counter\n")
	fmt.Fprintf(w, "triage_result_cache_total{outcome=\"hit\"} %d\n", cacheHits.Load())
	fmt.Fprintf(w, "triage_result_cache_total{outcome=\"miss\"} %d\n", cacheMisses.Load())

	fmt.Fprintf(w, "# HELP triage_events_total Triage events written to Kafka, by outcome.\n")
	fmt.Fprintf(w, "# TYPE triage_events_total counter\n")
	fmt.Fprintf(w, "triage_events_total{outcome=\"published\"} %d\n", eventsPublished.Load())
	fmt.Fprintf(w, "triage_events_total{outcome=\"failed\"} %d\n", eventsFailed.Load())

	fmt.Fprintf(w, "# HELP triage_alerts_recorded_total Emergency alerts persisted by the alert consumer.\n")
	fmt.Fprintf(w, "# TYPE triage_alerts_recorded_total counter\n")
	fmt.Fprintf(w, "triage_alerts_recorded_total %d\n", alertsRecorded.Load())

	fmt.Fprintf(w, "# HELP triage_dropped_symptoms_total Evidence entries dropped for unknown symptom ids.\n")
	fmt.Fprintf(w, "# TYPE triage_dropped_symptoms_total counter\n")
	fmt.Fprintf(w, "triage_dropped_symptoms_total %d\n", droppedSymptoms.Load())

	fmt.Fprintf(w, "# HELP triage_invalid_requests_total Requests rejected as invalid input.\n")
	fmt.Fprintf(w, "# TYPE triage_invalid_requests_total counter\n")
	fmt.Fprintf(w, "triage_invalid_requests_total %d\n", invalidRequests.Load())
}

package region

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	corridorsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenwave_corridors_active",
		Help: "Number of established green-wave corridors.",
	})

	corridorMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenwave_corridor_members",
		Help: "Number of junctions that are part of a corridor.",
	})

	regionalRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenwave_regional_runs_total",
		Help: "Total number of regional corridor calculations, labelled by outcome.",
	}, []string{"outcome"})

	candidatePaths = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenwave_regional_candidate_paths",
		Help: "Number of candidate paths of the last regional calculation.",
	})

	bestSystemBenefit = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenwave_regional_best_benefit",
		Help: "Benefit of the stream system chosen by the last regional calculation.",
	})

	phasesRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenwave_negotiation_phases_total",
		Help: "Total number of negotiation phases run, labelled by phase.",
	}, []string{"phase"})

	controllerSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenwave_controller_switches_total",
		Help: "Total number of traffic light controller switches, labelled by kind.",
	}, []string{"kind"})

	operatorWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "greenwave_operator_warnings_total",
		Help: "Total number of conditions that need operator attention.",
	})

	updateChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenwave_update_checks_total",
		Help: "Total number of corridor change-demand checks, labelled by reason.",
	}, []string{"reason"})
)

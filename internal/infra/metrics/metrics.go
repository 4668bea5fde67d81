// Package metrics provides Prometheus metrics for obsflow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels stay low-cardinality: component names, outcomes and states only.

var (
	// Counters

	// AwaiterTimeouts counts waits that resolved by timeout, by awaiter name.
	AwaiterTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obsflow_awaiter_timeouts_total",
		Help: "Total number of awaiter waits that timed out, by awaiter.",
	}, []string{"awaiter"})

	// RecordingActions counts recording start/stop/split requests by outcome.
	RecordingActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obsflow_recording_actions_total",
		Help: "Total number of recording actions, by action and outcome.",
	}, []string{"action", "outcome"})

	// RenameAttempts counts recording file rename attempts by outcome
	// (ok, retry, failed).
	RenameAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obsflow_rename_attempts_total",
		Help: "Total number of recording rename attempts, by outcome.",
	}, []string{"outcome"})

	// SceneSequences counts intro/outro sequences by direction and result.
	SceneSequences = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obsflow_scene_sequences_total",
		Help: "Total number of scene sequences, by direction and result.",
	}, []string{"direction", "result"})

	// StageHandlerFailures counts failed stage callbacks.
	StageHandlerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obsflow_stage_handler_failures_total",
		Help: "Total number of stage change callbacks that failed.",
	})

	// ConnectAttempts counts OBS connection attempts by result.
	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obsflow_connect_attempts_total",
		Help: "Total number of OBS connection attempts, by result.",
	}, []string{"result"})

	// Gauges

	// Connected is 1 while connected to OBS.
	Connected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "obsflow_obs_connected",
		Help: "Whether obsflow is connected to OBS (1) or not (0).",
	})

	// OutputState tracks the last observed output state (0 stopped,
	// 1 starting, 2 started, 3 stopping), by output.
	OutputState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "obsflow_output_state",
		Help: "Last observed output state, by output (record, stream).",
	}, []string{"output"})

	// SceneStage tracks the current scene stage value.
	SceneStage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "obsflow_scene_stage",
		Help: "Current scene sequence stage.",
	})

	// NotificationSubscribers tracks the number of event stream subscribers.
	NotificationSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "obsflow_notification_subscribers",
		Help: "Current number of notification subscribers.",
	})
)

// SetConnected records the connection state.
func SetConnected(connected bool) {
	if connected {
		Connected.Set(1)
		return
	}
	Connected.Set(0)
}

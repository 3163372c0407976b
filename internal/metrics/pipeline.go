// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Release pipeline metrics
	releasesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mnb_releases_fetched_total",
		Help: "Total number of digital releases returned by discovery",
	})

	releasesNew = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mnb_releases_new_total",
		Help: "Total number of releases that passed history and relevance filters",
	})

	duplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mnb_duplicates_skipped_total",
		Help: "Total number of releases skipped because they were already sent",
	})

	irrelevantSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnb_irrelevant_skipped_total",
		Help: "Releases dropped by the relevance filter by reason",
	}, []string{"reason"}) // reason=country|genre|runtime

	historySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mnb_history_size",
		Help: "Number of movie IDs in the sent history after the last run",
	})

	// Dispatch metrics
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnb_messages_sent_total",
		Help: "Telegram messages delivered by chat",
	}, []string{"chat"})

	dispatchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnb_dispatch_errors_total",
		Help: "Telegram dispatch failures by kind",
	}, []string{"kind"}) // kind=rate_limit|server|client|network|unknown_chat
)

func RecordReleasesFetched(n int)  { releasesFetched.Add(float64(n)) }
func RecordReleasesNew(n int)      { releasesNew.Add(float64(n)) }
func IncDuplicateSkipped()         { duplicatesSkipped.Inc() }
func IncIrrelevant(reason string)  { irrelevantSkipped.WithLabelValues(reason).Inc() }
func RecordHistorySize(n int)      { historySize.Set(float64(n)) }
func IncMessageSent(chat string)   { messagesSent.WithLabelValues(chat).Inc() }
func IncDispatchError(kind string) { dispatchErrors.WithLabelValues(kind).Inc() }

package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	AdvertsSent      = metric.NewCounter("10s1s")
	AdvertsReceived  = metric.NewCounter("10s1s")
	SendFailures     = metric.NewCounter("1m1s")
	DecodeErrors     = metric.NewCounter("1m1s")
	ProbeFailures    = metric.NewCounter("1m1s")
	RouteChanges     = metric.NewCounter("1m1s")
	OffersSuperseded = metric.NewCounter("1m1s")
	ProbeLatency     = metric.NewHistogram("1m1s")
	TickDuration     = metric.NewHistogram("10m10s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("strand:AdvertsSent/s", AdvertsSent)
	expvar.Publish("strand:AdvertsReceived/s", AdvertsReceived)
	expvar.Publish("strand:SendFailures", SendFailures)
	expvar.Publish("strand:DecodeErrors", DecodeErrors)
	expvar.Publish("strand:ProbeFailures", ProbeFailures)
	expvar.Publish("strand:RouteChanges", RouteChanges)
	expvar.Publish("strand:OffersSuperseded", OffersSuperseded)
	expvar.Publish("strand:ProbeLatency (ms)", ProbeLatency)
	expvar.Publish("strand:TickDuration (µs)", TickDuration)
}

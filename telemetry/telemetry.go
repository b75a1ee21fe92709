// Package telemetry expone métricas Prometheus de las operaciones de documentos y sesión.
//
// Un *Telemetry nil es válido: todos los métodos son no-op. Así los clientes no
// necesitan chequear si la app se configuró con measurementId.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result de una operación, usado como label.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Config de telemetry.
type Config struct {
	Namespace     string
	AppID         string
	MeasurementID string
	// Registry propio; nil => uno nuevo (no se usa el DefaultRegisterer global).
	Registry *prometheus.Registry
}

// Telemetry agrupa los collectors.
type Telemetry struct {
	reg *prometheus.Registry

	docOps      *prometheus.CounterVec
	docDuration *prometheus.HistogramVec
	authOps     *prometheus.CounterVec
	sessions    *prometheus.CounterVec
	subscribers prometheus.Gauge
	signedIn    prometheus.Gauge
}

// New registra las métricas en un registry propio.
func New(cfg Config) (*Telemetry, error) {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "hellodoc"
	}
	labels := prometheus.Labels{}
	if cfg.AppID != "" {
		labels["app_id"] = cfg.AppID
	}
	if cfg.MeasurementID != "" {
		labels["measurement_id"] = cfg.MeasurementID
	}

	t := &Telemetry{
		reg: reg,
		docOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "docs", Name: "operations_total",
			Help:        "Operaciones de documentos por colección y resultado",
			ConstLabels: labels,
		}, []string{"op", "collection", "result"}),
		docDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "docs", Name: "operation_duration_seconds",
			Help:        "Latencia de operaciones de documentos",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"op"}),
		authOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "auth", Name: "operations_total",
			Help:        "Operaciones de sesión por resultado y código de error",
			ConstLabels: labels,
		}, []string{"op", "result", "code"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "session", Name: "transitions_total",
			Help:        "Transiciones de sesión emitidas",
			ConstLabels: labels,
		}, []string{"event"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "session", Name: "subscribers",
			Help:        "Suscriptores activos de cambios de sesión",
			ConstLabels: labels,
		}),
		signedIn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "session", Name: "signed_in",
			Help:        "1 si hay un usuario con sesión",
			ConstLabels: labels,
		}),
	}
	for _, c := range []prometheus.Collector{t.docOps, t.docDuration, t.authOps, t.sessions, t.subscribers, t.signedIn} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// RegisterGoCollectors agrega go_* y process_* (la CLI los expone, la librería no).
func (t *Telemetry) RegisterGoCollectors() error {
	if t == nil {
		return nil
	}
	if err := t.reg.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	return t.reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Registry para tests y para componer con otro exporter.
func (t *Telemetry) Registry() *prometheus.Registry {
	if t == nil {
		return nil
	}
	return t.reg
}

// Handler para montar en /metrics.
func (t *Telemetry) Handler() http.Handler {
	if t == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.reg, promhttp.HandlerOpts{})
}

// ObserveDoc registra una operación de documentos.
func (t *Telemetry) ObserveDoc(op, collection, result string, d time.Duration) {
	if t == nil {
		return
	}
	t.docOps.WithLabelValues(op, collection, result).Inc()
	t.docDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveAuth registra una operación de sesión. code vacío si fue ok.
func (t *Telemetry) ObserveAuth(op, result, code string) {
	if t == nil {
		return
	}
	t.authOps.WithLabelValues(op, result, code).Inc()
}

// SessionTransition cuenta un evento emitido y actualiza el gauge signed_in.
func (t *Telemetry) SessionTransition(event string, signedIn bool) {
	if t == nil {
		return
	}
	t.sessions.WithLabelValues(event).Inc()
	if signedIn {
		t.signedIn.Set(1)
	} else {
		t.signedIn.Set(0)
	}
}

// SubscriberDelta ajusta el gauge de suscriptores.
func (t *Telemetry) SubscriberDelta(n int) {
	if t == nil {
		return
	}
	t.subscribers.Add(float64(n))
}

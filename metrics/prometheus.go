package metrics

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/omnibridge/omnibridge-service/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mutex       sync.RWMutex
	registerer  prometheus.Registerer
	initialized bool
	env         string

	gauges     map[string]*prometheus.GaugeVec
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
)

func getLogger(metricName, metricType string) *log.Logger {
	return log.WithFields("metricName", metricName, "metricType", metricType)
}

// StartMetricsHttpServer initializes the metrics registry and serves it until the process is interrupted
func StartMetricsHttpServer(c Config) {
	if !c.Enabled {
		return
	}
	Init(prometheus.DefaultRegisterer, c.Env)

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultMetricsEndpoint
	}
	mux := http.NewServeMux()
	mux.Handle(endpoint, promhttp.Handler())
	srv := &http.Server{
		Addr:        ":" + c.Port,
		Handler:     mux,
		ReadTimeout: 5 * time.Second, //nolint:gomnd
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	go func() {
		<-ch
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	log.Infof("metrics server listening on %s%s", srv.Addr, endpoint)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("serve metrics http server error: %v", err)
	}
}

// Init registers every bridge collector on reg. Calling it again is a no-op.
func Init(reg prometheus.Registerer, environment string) {
	mutex.Lock()
	if initialized {
		mutex.Unlock()
		return
	}
	registerer = reg
	env = environment
	gauges = make(map[string]*prometheus.GaugeVec)
	counters = make(map[string]*prometheus.CounterVec)
	histograms = make(map[string]*prometheus.HistogramVec)
	initialized = true
	mutex.Unlock()

	registerCollectors()
}

func constLabels() prometheus.Labels {
	if env == "" {
		return nil
	}
	return prometheus.Labels{labelEnv: env}
}

func register(name, metricType string, collector prometheus.Collector) bool {
	if err := registerer.Register(collector); err != nil {
		getLogger(name, metricType).Errorf("metrics register error: %v", err)
		return false
	}
	getLogger(name, metricType).Debugf("metrics register successfully")
	return true
}

func registerGauge(opt prometheus.GaugeOpts, labelNames ...string) {
	mutex.Lock()
	defer mutex.Unlock()
	if _, ok := gauges[opt.Name]; ok {
		return
	}
	opt.ConstLabels = constLabels()
	collector := prometheus.NewGaugeVec(opt, labelNames)
	if register(opt.Name, typeGauge, collector) {
		gauges[opt.Name] = collector
	}
}

func registerCounter(opt prometheus.CounterOpts, labelNames ...string) {
	mutex.Lock()
	defer mutex.Unlock()
	if _, ok := counters[opt.Name]; ok {
		return
	}
	opt.ConstLabels = constLabels()
	collector := prometheus.NewCounterVec(opt, labelNames)
	if register(opt.Name, typeCounter, collector) {
		counters[opt.Name] = collector
	}
}

func registerHistogram(opt prometheus.HistogramOpts, labelNames ...string) {
	mutex.Lock()
	defer mutex.Unlock()
	if _, ok := histograms[opt.Name]; ok {
		return
	}
	opt.ConstLabels = constLabels()
	collector := prometheus.NewHistogramVec(opt, labelNames)
	if register(opt.Name, typeHistogram, collector) {
		histograms[opt.Name] = collector
	}
}

func gaugeSet(name string, value float64, labelValues map[string]string) {
	mutex.RLock()
	defer mutex.RUnlock()
	if !initialized {
		return
	}
	c, ok := gauges[name]
	if !ok {
		getLogger(name, typeGauge).Errorf("collector not found")
		return
	}
	c.With(labelValues).Set(value)
}

func counterAdd(name string, value float64, labelValues map[string]string) {
	mutex.RLock()
	defer mutex.RUnlock()
	if !initialized {
		return
	}
	c, ok := counters[name]
	if !ok {
		getLogger(name, typeCounter).Errorf("collector not found")
		return
	}
	c.With(labelValues).Add(value)
}

func counterInc(name string, labelValues map[string]string) {
	counterAdd(name, 1, labelValues)
}

func histogramObserve(name string, value float64, labelValues map[string]string) {
	mutex.RLock()
	defer mutex.RUnlock()
	if !initialized {
		return
	}
	c, ok := histograms[name]
	if !ok {
		getLogger(name, typeHistogram).Errorf("collector not found")
		return
	}
	c.With(labelValues).Observe(value)
}

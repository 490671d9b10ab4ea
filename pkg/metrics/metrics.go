package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

type Checkout struct {
	Checkouts      *prometheus.CounterVec
	Verifications  *prometheus.CounterVec
	Settlements    *prometheus.CounterVec
	GatewayLatency prometheus.Histogram
}

func NewCheckout(reg prometheus.Registerer) *Checkout {
	m := &Checkout{
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookmarket",
			Subsystem: "checkout",
			Name:      "orders_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookmarket",
			Subsystem: "payment",
			Name:      "verifications_total",
			Help:      "Payment verification attempts by outcome.",
		}, []string{"outcome"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookmarket",
			Subsystem: "inventory",
			Name:      "settlements_total",
			Help:      "Inventory settlements by outcome.",
		}, []string{"outcome"}),
		GatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bookmarket",
			Subsystem: "gateway",
			Name:      "create_intent_seconds",
			Help:      "Latency of payment intent creation.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.Checkouts, m.Verifications, m.Settlements, m.GatewayLatency)

	return m
}

type HTTP struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookmarket",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bookmarket",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
	}

	reg.MustRegister(m.requests, m.latency)

	return m
}

func (m *HTTP) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		m.requests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())

		return err
	}
}

package handlers

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clipforge/backend/internal/catalog"
	"github.com/clipforge/backend/internal/coinbase"
	"github.com/clipforge/backend/internal/ledger"
	"github.com/clipforge/backend/internal/stripe"
	"github.com/clipforge/backend/pkg/logging"
)

var (
	db             *sql.DB
	logger         logging.Logger
	metrics        *BillingMetrics
	engine         *ledger.Engine
	cat            *catalog.Catalog
	stripeClient   *stripe.Client
	coinbaseClient *coinbase.Client
	jwtSecret      []byte
)

// BillingMetrics holds all Prometheus metrics for the billing service
type BillingMetrics struct {
	CreditGrants      *prometheus.CounterVec
	CreditDeductions  *prometheus.CounterVec
	WebhookEvents     *prometheus.CounterVec
	SignatureFailures *prometheus.CounterVec
	CheckoutSessions  *prometheus.CounterVec
	DBQueries         *prometheus.CounterVec
	DBDuration        *prometheus.HistogramVec
	DBConnections     *prometheus.GaugeVec
}

// Init initializes the handlers with database, logger, and service clients
func Init(database *sql.DB, log logging.Logger, billingMetrics *BillingMetrics, ledgerEngine *ledger.Engine, planCatalog *catalog.Catalog, stripeCl *stripe.Client, coinbaseCl *coinbase.Client, secret []byte) {
	db = database
	logger = log
	metrics = billingMetrics
	engine = ledgerEngine
	cat = planCatalog
	stripeClient = stripeCl
	coinbaseClient = coinbaseCl
	jwtSecret = secret
}

package metrics

const (
	defaultMetricsEndpoint = "/metrics"
)

// Metric types
const (
	typeGauge     = "gauge"
	typeCounter   = "counter"
	typeHistogram = "histogram"
)

// Metric names and labels
const (
	prefix   = "omnibridge_"
	labelEnv = "env"

	prefixRequest          = prefix + "request_"
	metricRequestCount     = prefixRequest + "count"
	metricRequestLatency   = prefixRequest + "latency_ms"
	metricEndpointFailover = prefixRequest + "endpoint_failover_count"
	labelMethod            = "method"
	labelIsSuccess         = "success"
	labelClient            = "client"

	prefixTransfer         = prefix + "transfer_"
	metricDepositCount     = prefixTransfer + "deposit_count"
	metricWithdrawCount    = prefixTransfer + "withdraw_count"
	metricTransferAmount   = prefixTransfer + "total_amount"
	metricPendingTransfers = prefixTransfer + "pending_count"
	metricFinalizeWaitTime = prefixTransfer + "finalize_wait_time_sec"
	labelChain             = "chain"
	labelStatus            = "status"
	labelToken             = "token"
	labelDirection         = "direction"
	labelKind              = "kind"
	directionDeposit       = "deposit"
	directionWithdraw      = "withdraw"
)

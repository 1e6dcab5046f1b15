package metrics

import (
	"math/big"
	"strconv"
	"time"

	"github.com/omnibridge/omnibridge-service/log"
	"github.com/prometheus/client_golang/prometheus"
)

func registerCollectors() {
	registerCounter(prometheus.CounterOpts{Name: metricRequestCount}, labelMethod, labelIsSuccess)
	registerHistogram(prometheus.HistogramOpts{Name: metricRequestLatency}, labelMethod, labelIsSuccess)
	registerCounter(prometheus.CounterOpts{Name: metricEndpointFailover}, labelClient)
	registerCounter(prometheus.CounterOpts{Name: metricDepositCount}, labelChain, labelStatus)
	registerCounter(prometheus.CounterOpts{Name: metricWithdrawCount}, labelChain, labelStatus)
	registerCounter(prometheus.CounterOpts{Name: metricTransferAmount}, labelChain, labelToken, labelDirection)
	registerGauge(prometheus.GaugeOpts{Name: metricPendingTransfers}, labelKind)
	registerHistogram(prometheus.HistogramOpts{Name: metricFinalizeWaitTime}, labelChain)
}

// RecordRequest increments the request count for the method
func RecordRequest(method string, isSuccess bool) {
	counterInc(metricRequestCount, map[string]string{labelMethod: method, labelIsSuccess: strconv.FormatBool(isSuccess)})
}

// RecordRequestLatency records the latency histogram in milliseconds
func RecordRequestLatency(method string, latency time.Duration, isSuccess bool) {
	histogramObserve(metricRequestLatency, float64(latency.Milliseconds()), map[string]string{labelMethod: method, labelIsSuccess: strconv.FormatBool(isSuccess)})
}

// RecordEndpointFailover counts a switch to the next endpoint of a client
func RecordEndpointFailover(client string) {
	counterInc(metricEndpointFailover, map[string]string{labelClient: client})
}

// RecordDeposit counts a deposit reaching status
func RecordDeposit(chain int64, status string) {
	counterInc(metricDepositCount, map[string]string{labelChain: strconv.FormatInt(chain, 10), labelStatus: status}) //nolint:gomnd
}

// RecordWithdraw counts a withdrawal reaching status
func RecordWithdraw(chain int64, status string) {
	counterInc(metricWithdrawCount, map[string]string{labelChain: strconv.FormatInt(chain, 10), labelStatus: status}) //nolint:gomnd
}

// RecordDepositAmount adds a deposited amount, in base units, to the total
func RecordDepositAmount(chain int64, token string, amount *big.Int) {
	recordAmount(chain, token, directionDeposit, amount)
}

// RecordWithdrawAmount adds a withdrawn amount, in base units, to the total
func RecordWithdrawAmount(chain int64, token string, amount *big.Int) {
	recordAmount(chain, token, directionWithdraw, amount)
}

func recordAmount(chain int64, token, direction string, amount *big.Int) {
	if amount == nil {
		return
	}
	// This is inflated amount, e.g.: 1 ETH is stored as 1000000000000000000
	floatAmount, _ := new(big.Float).SetInt(amount).Float64()
	if floatAmount < 0 {
		log.Warnf("negative transfer amount [%v]", amount.String())
		return
	}
	counterAdd(metricTransferAmount, floatAmount, map[string]string{
		labelChain:     strconv.FormatInt(chain, 10), //nolint:gomnd
		labelToken:     token,
		labelDirection: direction,
	})
}

// RecordPending sets the number of stored unfinished transfers of a kind
func RecordPending(kind string, count int) {
	gaugeSet(metricPendingTransfers, float64(count), map[string]string{labelKind: kind})
}

// RecordFinalizeWaitTime records how long a deposit waited between submission and ledger credit
func RecordFinalizeWaitTime(chain int64, dur time.Duration) {
	histogramObserve(metricFinalizeWaitTime, dur.Seconds(), map[string]string{labelChain: strconv.FormatInt(chain, 10)}) //nolint:gomnd
}

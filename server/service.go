package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/metrics"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/pkg/errors"
)

const (
	defaultErrorCode   = 1
	defaultSuccessCode = 0

	defaultPageLimit = 100
)

type response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// transferService answers read-only queries about the transfers kept in storage
type transferService struct {
	storage      transferStorage
	maxPageLimit uint
	marshaler    runtime.Marshaler
}

func newTransferService(cfg Config, storage transferStorage) *transferService {
	limit := cfg.MaxPageLimit
	if limit == 0 {
		limit = defaultPageLimit
	}
	return &transferService{storage: storage, maxPageLimit: limit, marshaler: &runtime.JSONBuiltin{}}
}

func (s *transferService) register(mux *runtime.ServeMux) error {
	routes := []struct {
		name    string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"deposits", "/v1/deposits", s.pendingDeposits},
		{"deposit", "/v1/deposits/{chain}/{nonce}", s.deposit},
		{"withdraws", "/v1/withdraws", s.pendingWithdraws},
		{"withdraw", "/v1/withdraws/{chain}/{nonce}", s.withdraw},
	}
	for _, r := range routes {
		if err := mux.HandlePath(http.MethodGet, r.pattern, s.instrument(r.name, r.handler)); err != nil {
			return errors.Wrap(err, r.pattern)
		}
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *transferService) instrument(name string, h runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r, params)
		ok := rec.status < http.StatusInternalServerError
		metrics.RecordRequest("api/"+name, ok)
		metrics.RecordRequestLatency("api/"+name, time.Since(start), ok)
		log.Debugf("method[%s] url[%s] status[%d] processTime[%s]", name, r.URL.String(), rec.status, time.Since(start))
	}
}

func (s *transferService) write(w http.ResponseWriter, data interface{}) {
	s.send(w, http.StatusOK, response{Code: defaultSuccessCode, Data: data})
}

func (s *transferService) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, gerror.ErrStorageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, gerror.ErrUnsupportedChain), errors.Is(err, errInvalidParam):
		status = http.StatusBadRequest
	default:
		log.Errorf("transfer api: %v", err)
	}
	s.send(w, status, response{Code: defaultErrorCode, Msg: err.Error()})
}

func (s *transferService) send(w http.ResponseWriter, status int, body response) {
	raw, err := s.marshaler.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", s.marshaler.ContentType(body))
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

var errInvalidParam = errors.New("invalid parameter")

func parseChain(s string) (omni.Network, error) {
	if s == "" {
		return 0, nil
	}
	chain, ok := omni.ParseNetwork(s)
	if !ok {
		return 0, fmt.Errorf("chain %q: %w", s, gerror.ErrUnsupportedChain)
	}
	return chain, nil
}

func (s *transferService) limit(raw string) (uint, error) {
	if raw == "" {
		return s.maxPageLimit, nil
	}
	n, err := strconv.ParseUint(raw, 10, 32) //nolint:gomnd
	if err != nil || n == 0 {
		return 0, fmt.Errorf("limit %q: %w", raw, errInvalidParam)
	}
	if uint(n) > s.maxPageLimit {
		return s.maxPageLimit, nil
	}
	return uint(n), nil
}

// pendingDeposits lists deposits oldest first, optionally filtered by chain and intent account
func (s *transferService) pendingDeposits(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	chain, err := parseChain(q.Get("chain"))
	if err != nil {
		s.fail(w, err)
		return
	}
	limit, err := s.limit(q.Get("limit"))
	if err != nil {
		s.fail(w, err)
		return
	}
	account := q.Get("intentAccount")
	fetch := limit
	if chain != 0 || account != "" {
		fetch = 0
	}
	deposits, err := s.storage.GetPendingDeposits(r.Context(), fetch)
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]*models.PendingDeposit, 0, len(deposits))
	for _, d := range deposits {
		if (chain != 0 && d.Chain != chain) || (account != "" && d.IntentAccount != account) {
			continue
		}
		out = append(out, d)
		if uint(len(out)) == limit {
			break
		}
	}
	s.write(w, out)
}

func (s *transferService) deposit(w http.ResponseWriter, r *http.Request, params map[string]string) {
	chain, err := parseChain(params["chain"])
	if err != nil {
		s.fail(w, err)
		return
	}
	d, err := s.storage.GetDeposit(r.Context(), chain, params["nonce"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, d)
}

// pendingWithdraws lists withdrawals not yet claimed, optionally filtered by chain and receiver
func (s *transferService) pendingWithdraws(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	chain, err := parseChain(q.Get("chain"))
	if err != nil {
		s.fail(w, err)
		return
	}
	limit, err := s.limit(q.Get("limit"))
	if err != nil {
		s.fail(w, err)
		return
	}
	withdraws, err := s.storage.GetPendingWithdraws(r.Context(), chain, q.Get("receiver"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if uint(len(withdraws)) > limit {
		withdraws = withdraws[:limit]
	}
	if withdraws == nil {
		withdraws = []*models.PendingWithdraw{}
	}
	s.write(w, withdraws)
}

func (s *transferService) withdraw(w http.ResponseWriter, r *http.Request, params map[string]string) {
	chain, err := parseChain(params["chain"])
	if err != nil {
		s.fail(w, err)
		return
	}
	wd, err := s.storage.GetWithdraw(r.Context(), chain, params["nonce"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, wd)
}

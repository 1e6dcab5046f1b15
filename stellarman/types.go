package stellarman

type ledgerEntriesResponse struct {
	Entries []struct {
		Key string `json:"key"`
		XDR string `json:"xdr"`
	} `json:"entries"`
	LatestLedger int64 `json:"latestLedger"`
}

type simulateResult struct {
	Auth []string `json:"auth"`
	XDR  string   `json:"xdr"`
}

type simulateResponse struct {
	TransactionData string           `json:"transactionData"`
	MinResourceFee  string           `json:"minResourceFee"`
	Results         []simulateResult `json:"results"`
	Error           string           `json:"error"`
	LatestLedger    int64            `json:"latestLedger"`
}

// Soroban RPC transaction statuses
const (
	sendStatusPending   = "PENDING"
	sendStatusDuplicate = "DUPLICATE"
	sendStatusError     = "ERROR"
	sendStatusTryAgain  = "TRY_AGAIN_LATER"
	txStatusSuccess     = "SUCCESS"
	txStatusFailed      = "FAILED"
)

type sendResponse struct {
	Status         string `json:"status"`
	Hash           string `json:"hash"`
	ErrorResultXDR string `json:"errorResultXdr"`
}

type transactionResponse struct {
	Status        string `json:"status"`
	ResultMetaXDR string `json:"resultMetaXdr"`
	ResultXDR     string `json:"resultXdr"`
	Ledger        int64  `json:"ledger"`
}

package config

// DefaultValues is the default configuration
const DefaultValues = `
[Log]
Environment = "development"
Level = "info"
Outputs = ["stderr"]

[SyncDB]
Database = "memory"
User = "omnibridge_user"
Password = "omnibridge_password"
Name = "omnibridge_db"
Host = "localhost"
Port = "5432"
MaxConns = 20
    [SyncDB.Redis]
    IsClusterMode = false
    Addrs = ["localhost:6379"]
    DB = 0
    KeyPrefix = "omnibridge"

[ClaimTxManager]
Enabled = true
FrequencyToMonitorTxs = "30s"
RetryNumber = 10
BatchSize = 100

[BridgeController]
SkipGasCheck = false
FeeCacheTTL = "15s"
BalanceCacheTTL = "5s"

[MessagePushProducer]
Enabled = false
UseFakeProducer = false
Brokers = ["localhost:9092"]
Topic = "omnibridge_transfers"

[Metrics]
Enabled = false
Port = "9091"
Endpoint = "/metrics"
Env = "local"

[Server]
Enabled = false
GRPCPort = "9090"
HTTPPort = "8080"
MaxPageLimit = 100

[Near]
    [Near.RPC]
    Timeout = "10s"
    MaxTimeout = "60s"
    Retry = {Attempts = 3, Interval = "1s", Multiplier = 1.5, MaxInterval = "10s"}
    [Near.TxPoll]
    Attempts = 20
    Interval = "3s"
    Multiplier = 1

[Ledger]
CallGas = 300000000000000
IntentDeadline = "10m"

[MPC]
    [MPC.RPC]
    URLs = ["http://localhost:8090"]
    Timeout = "30s"
    MaxTimeout = "60s"
    Retry = {Attempts = 3, Interval = "2s", Multiplier = 1}

[Pricing]
    [Pricing.RPC]
    URLs = []
    Timeout = "10s"
    MaxTimeout = "30s"
    Retry = {Attempts = 2, Interval = "1s", Multiplier = 1}

[Chains]
    [Chains.Ton]
    DepositAttach = 100000000
    JettonAttach = 150000000
    ForwardAmount = 100000000
    WithdrawAttach = 50000000
    TraceDepth = 20
    Confirm = {Attempts = 20, Interval = "3s", Multiplier = 1}
    [Chains.Solana]
    BaseFee = 5000
    PriorityFee = 10000
    ComputeUnits = 200000
    Confirm = {Attempts = 30, Interval = "2s", Multiplier = 1}
    [Chains.Stellar]
    WithdrawFee = 1000000
    Confirm = {Attempts = 20, Interval = "2s", Multiplier = 1}
    [Chains.Tron]
    FeeLimit = 100000000
    Confirm = {Attempts = 20, Interval = "3s", Multiplier = 1}
`

package server

// Config struct
type Config struct {
	// Enabled starts the transfer status API with the run command
	Enabled bool `mapstructure:"Enabled"`
	// GRPCPort is TCP port to listen by gRPC server
	GRPCPort string `mapstructure:"GRPCPort"`
	// HTTPPort is TCP port to listen by HTTP/REST gateway
	HTTPPort string `mapstructure:"HTTPPort"`
	// MaxPageLimit caps list responses, it is also the limit when a request sets none
	MaxPageLimit uint `mapstructure:"MaxPageLimit"`
}

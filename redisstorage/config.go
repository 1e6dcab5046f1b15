package redisstorage

// Config stores the redis connection configs
type Config struct {
	// If this is true, will use ClusterClient
	IsClusterMode bool `mapstructure:"IsClusterMode"`

	// Host:Port address
	Addrs []string `mapstructure:"Addrs"`

	// Username for ACL
	Username string `mapstructure:"Username"`

	// Password for ACL
	Password string `mapstructure:"Password"`

	// DB index, ignored in cluster mode
	DB int `mapstructure:"DB"`

	// KeyPrefix namespaces the hashes so several bridges can share a server
	KeyPrefix string `mapstructure:"KeyPrefix"`
}

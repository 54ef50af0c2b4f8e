package swmrconfig

// ConfigJson is the on-disk form (json or yaml). Every field is optional; nil means default.
type ConfigJson struct {
	Kinds map[string]*KindConfigJson `json:"kinds" yaml:"kinds"`
	Store *StoreConfigJson           `json:"store" yaml:"store"`
}

type KindConfigJson struct {
	ReplicaCount      *int    `json:"replica_count" yaml:"replica_count"`
	VirtualPoints     *int    `json:"virtual_points" yaml:"virtual_points"`
	Topology          *string `json:"topology" yaml:"topology"` // consistent_hash | static
	ReaderPoolSize    *int    `json:"reader_pool_size" yaml:"reader_pool_size"`
	MailboxSize       *int    `json:"mailbox_size" yaml:"mailbox_size"`
	CallTimeoutMs     *int    `json:"call_timeout_ms" yaml:"call_timeout_ms"`
	ReplicationPolicy *string `json:"replication_policy" yaml:"replication_policy"` // best_effort | at_least_once
	RetryMaxAttempts  *int    `json:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs  *int    `json:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs   *int    `json:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	LazyWrite               *bool `json:"lazy_write" yaml:"lazy_write"`
	LazyWriteInitialDelayMs *int  `json:"lazy_write_initial_delay_ms" yaml:"lazy_write_initial_delay_ms"`
	LazyWritePeriodSec      *int  `json:"period_sec" yaml:"period_sec"`
	MaxConsecutiveFailures  *int  `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`
}

type StoreConfigJson struct {
	Type              *string  `json:"type" yaml:"type"` // memory | etcd | mongo
	KeyPrefix         *string  `json:"key_prefix" yaml:"key_prefix"`
	EtcdEndpoints     []string `json:"etcd_endpoints" yaml:"etcd_endpoints"`
	EtcdDialTimeoutMs *int     `json:"etcd_dial_timeout_ms" yaml:"etcd_dial_timeout_ms"`
	MongoURI          *string  `json:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase     *string  `json:"mongo_database" yaml:"mongo_database"`
	MongoCollection   *string  `json:"mongo_collection" yaml:"mongo_collection"`
}

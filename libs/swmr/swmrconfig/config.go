package swmrconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xinkaiwang/swmr/libs/xklib/kcommon"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"gopkg.in/yaml.v3"
)

type TopologyType string

const (
	TT_ConsistentHash TopologyType = "consistent_hash"
	TT_Static         TopologyType = "static"
)

type ReplicationPolicy string

const (
	// RP_BestEffort: pushes to non-session replicas are fire-and-forget, failures dropped
	RP_BestEffort ReplicationPolicy = "best_effort"
	// RP_AtLeastOnce: failed pushes are retried with exponential backoff until superseded or out of attempts
	RP_AtLeastOnce ReplicationPolicy = "at_least_once"
)

type StoreType string

const (
	ST_Memory StoreType = "memory"
	ST_Etcd   StoreType = "etcd"
	ST_Mongo  StoreType = "mongo"
)

type Config struct {
	Kinds map[string]KindConfig
	Store StoreConfig
}

// KindConfig configures one grain kind. Writer and Reader build their topologies from it independently.
type KindConfig struct {
	Name              string
	ReplicaCount      int // default 10
	VirtualPoints     int // default 100
	Topology          TopologyType
	ReaderPoolSize    int // default 8
	MailboxSize       int // default 1024, 0 means unbounded
	CallTimeoutMs     int // default 5000
	ReplicationPolicy ReplicationPolicy
	RetryMaxAttempts  int // default 5
	RetryBaseDelayMs  int // default 100
	RetryMaxDelayMs   int // default 5000

	LazyWrite               bool
	LazyWriteInitialDelayMs int // default 1000
	LazyWritePeriodMs       int // default 5000
	MaxConsecutiveFailures  int // default 10
}

type StoreConfig struct {
	Type              StoreType
	KeyPrefix         string // default "/swmr/"
	EtcdEndpoints     []string
	EtcdDialTimeoutMs int
	MongoURI          string
	MongoDatabase     string
	MongoCollection   string
}

func DefaultKindConfig(name string) KindConfig {
	return KindConfigJsonToConfig(name, nil)
}

func KindConfigJsonToConfig(name string, kc *KindConfigJson) KindConfig {
	cfg := KindConfig{
		Name:                    name,
		ReplicaCount:            10,
		VirtualPoints:           100,
		Topology:                TT_ConsistentHash,
		ReaderPoolSize:          8,
		MailboxSize:             1024,
		CallTimeoutMs:           5000,
		ReplicationPolicy:       RP_BestEffort,
		RetryMaxAttempts:        5,
		RetryBaseDelayMs:        100,
		RetryMaxDelayMs:         5000,
		LazyWrite:               false,
		LazyWriteInitialDelayMs: 1000,
		LazyWritePeriodMs:       5000,
		MaxConsecutiveFailures:  10,
	}
	if kc == nil {
		return cfg
	}
	setInt(&cfg.ReplicaCount, kc.ReplicaCount)
	setInt(&cfg.VirtualPoints, kc.VirtualPoints)
	setInt(&cfg.ReaderPoolSize, kc.ReaderPoolSize)
	setInt(&cfg.MailboxSize, kc.MailboxSize)
	setInt(&cfg.CallTimeoutMs, kc.CallTimeoutMs)
	setInt(&cfg.RetryMaxAttempts, kc.RetryMaxAttempts)
	setInt(&cfg.RetryBaseDelayMs, kc.RetryBaseDelayMs)
	setInt(&cfg.RetryMaxDelayMs, kc.RetryMaxDelayMs)
	setInt(&cfg.LazyWriteInitialDelayMs, kc.LazyWriteInitialDelayMs)
	setInt(&cfg.MaxConsecutiveFailures, kc.MaxConsecutiveFailures)
	if kc.Topology != nil {
		cfg.Topology = TopologyType(*kc.Topology)
	}
	if kc.ReplicationPolicy != nil {
		cfg.ReplicationPolicy = ReplicationPolicy(*kc.ReplicationPolicy)
	}
	if kc.LazyWrite != nil {
		cfg.LazyWrite = *kc.LazyWrite
	}
	if kc.LazyWritePeriodSec != nil {
		cfg.LazyWritePeriodMs = *kc.LazyWritePeriodSec * 1000
	}
	return cfg
}

func StoreConfigJsonToConfig(sc *StoreConfigJson) StoreConfig {
	cfg := StoreConfig{
		Type:              ST_Memory,
		KeyPrefix:         "/swmr/",
		EtcdEndpoints:     []string{"localhost:2379"},
		EtcdDialTimeoutMs: 5000,
		MongoURI:          "mongodb://localhost:27017",
		MongoDatabase:     "swmr",
		MongoCollection:   "grain_state",
	}
	if sc == nil {
		return cfg
	}
	if sc.Type != nil {
		cfg.Type = StoreType(*sc.Type)
	}
	setString(&cfg.KeyPrefix, sc.KeyPrefix)
	if len(sc.EtcdEndpoints) > 0 {
		cfg.EtcdEndpoints = sc.EtcdEndpoints
	}
	setInt(&cfg.EtcdDialTimeoutMs, sc.EtcdDialTimeoutMs)
	setString(&cfg.MongoURI, sc.MongoURI)
	setString(&cfg.MongoDatabase, sc.MongoDatabase)
	setString(&cfg.MongoCollection, sc.MongoCollection)
	return cfg
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func ConfigJsonToConfig(cj *ConfigJson) *Config {
	cfg := &Config{
		Kinds: map[string]KindConfig{},
		Store: StoreConfigJsonToConfig(cj.Store),
	}
	for name, kc := range cj.Kinds {
		cfg.Kinds[name] = KindConfigJsonToConfig(name, kc)
	}
	return cfg
}

func ParseConfigJson(data []byte) (*Config, error) {
	cj := &ConfigJson{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, cj); err != nil {
			return nil, kerror.Wrap(err, "UnmarshalError", "failed to unmarshal config json", false).WithErrorCode(kerror.EC_INVALID_PARAMETER)
		}
	}
	return finish(ConfigJsonToConfig(cj))
}

func ParseConfigYaml(data []byte) (*Config, error) {
	cj := &ConfigJson{}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cj); err != nil {
			return nil, kerror.Wrap(err, "UnmarshalError", "failed to unmarshal config yaml", false).WithErrorCode(kerror.EC_INVALID_PARAMETER)
		}
	}
	return finish(ConfigJsonToConfig(cj))
}

// LoadFromFile picks the decoder by extension: .yaml/.yml, otherwise json.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kerror.Wrap(err, "ConfigReadError", "failed to read config file", false).
			WithErrorCode(kerror.EC_INVALID_PARAMETER).With("path", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseConfigYaml(data)
	default:
		return ParseConfigJson(data)
	}
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides lets deployments tune every kind without editing the file:
// SWMR_REPLICA_COUNT, SWMR_READER_POOL_SIZE, SWMR_CALL_TIMEOUT_MS, SWMR_REPLICATION_POLICY,
// SWMR_LAZY_WRITE, SWMR_STORE_TYPE, ETCD_ENDPOINTS, MONGO_URI.
func (cfg *Config) ApplyEnvOverrides() {
	for name, kc := range cfg.Kinds {
		kc.ReplicaCount = kcommon.GetEnvInt("SWMR_REPLICA_COUNT", kc.ReplicaCount)
		kc.ReaderPoolSize = kcommon.GetEnvInt("SWMR_READER_POOL_SIZE", kc.ReaderPoolSize)
		kc.CallTimeoutMs = kcommon.GetEnvInt("SWMR_CALL_TIMEOUT_MS", kc.CallTimeoutMs)
		kc.ReplicationPolicy = ReplicationPolicy(kcommon.GetEnvString("SWMR_REPLICATION_POLICY", string(kc.ReplicationPolicy)))
		kc.LazyWrite = kcommon.GetEnvBool("SWMR_LAZY_WRITE", kc.LazyWrite)
		cfg.Kinds[name] = kc
	}
	cfg.Store.Type = StoreType(kcommon.GetEnvString("SWMR_STORE_TYPE", string(cfg.Store.Type)))
	if endpoints := kcommon.GetEnvString("ETCD_ENDPOINTS", ""); endpoints != "" {
		cfg.Store.EtcdEndpoints = strings.Split(endpoints, ",")
	}
	cfg.Store.MongoURI = kcommon.GetEnvString("MONGO_URI", cfg.Store.MongoURI)
}

func (cfg *Config) Validate() error {
	names := make([]string, 0, len(cfg.Kinds))
	for name := range cfg.Kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		kc := cfg.Kinds[name]
		if err := kc.Validate(); err != nil {
			return err
		}
	}
	return cfg.Store.Validate()
}

// Kind returns the named kind config, or the defaults when the file does not mention it.
func (cfg *Config) Kind(name string) KindConfig {
	if kc, ok := cfg.Kinds[name]; ok {
		return kc
	}
	return DefaultKindConfig(name)
}

func invalid(errType, msg string) *kerror.Kerror {
	return kerror.Create(errType, msg).WithErrorCode(kerror.EC_INVALID_PARAMETER).WithoutStack()
}

func (kc KindConfig) Validate() error {
	switch {
	case kc.ReplicaCount < 1:
		return invalid("InvalidReplicaCount", "replica count must be >= 1").With("kind", kc.Name).With("replicaCount", kc.ReplicaCount)
	case kc.VirtualPoints < 1:
		return invalid("InvalidVirtualPoints", "virtual points must be >= 1").With("kind", kc.Name).With("virtualPoints", kc.VirtualPoints)
	case kc.ReaderPoolSize < 1:
		return invalid("InvalidReaderPoolSize", "reader pool size must be >= 1").With("kind", kc.Name)
	case kc.MailboxSize < 0:
		return invalid("InvalidMailboxSize", "mailbox size must be >= 0").With("kind", kc.Name)
	case kc.CallTimeoutMs < 1:
		return invalid("InvalidCallTimeout", "call timeout must be >= 1ms").With("kind", kc.Name)
	case kc.Topology != TT_ConsistentHash && kc.Topology != TT_Static:
		return invalid("InvalidTopology", "unknown topology type").With("kind", kc.Name).With("topology", kc.Topology)
	case kc.ReplicationPolicy != RP_BestEffort && kc.ReplicationPolicy != RP_AtLeastOnce:
		return invalid("InvalidReplicationPolicy", "unknown replication policy").With("kind", kc.Name).With("policy", kc.ReplicationPolicy)
	case kc.ReplicationPolicy == RP_AtLeastOnce && (kc.RetryMaxAttempts < 1 || kc.RetryBaseDelayMs < 1):
		return invalid("InvalidRetryPolicy", "at_least_once needs retry attempts and base delay >= 1").With("kind", kc.Name)
	case kc.LazyWrite && (kc.LazyWritePeriodMs < 1 || kc.MaxConsecutiveFailures < 1 || kc.LazyWriteInitialDelayMs < 0):
		return invalid("InvalidLazyWrite", "lazy write needs period >= 1ms and max failures >= 1").With("kind", kc.Name)
	}
	return nil
}

func (sc StoreConfig) Validate() error {
	switch sc.Type {
	case ST_Memory:
	case ST_Etcd:
		if len(sc.EtcdEndpoints) == 0 {
			return invalid("InvalidStoreConfig", "etcd store needs endpoints")
		}
	case ST_Mongo:
		if sc.MongoURI == "" || sc.MongoDatabase == "" || sc.MongoCollection == "" {
			return invalid("InvalidStoreConfig", "mongo store needs uri, database and collection")
		}
	default:
		return invalid("InvalidStoreConfig", "unknown store type").With("type", sc.Type)
	}
	return nil
}

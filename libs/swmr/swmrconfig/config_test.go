package swmrconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
)

func TestDefaults(t *testing.T) {
	kc := DefaultKindConfig("prefs")
	assert.Equal(t, "prefs", kc.Name)
	assert.Equal(t, 10, kc.ReplicaCount)
	assert.Equal(t, 100, kc.VirtualPoints)
	assert.Equal(t, RP_BestEffort, kc.ReplicationPolicy)
	assert.Equal(t, 1000, kc.LazyWriteInitialDelayMs)
	assert.Equal(t, 5000, kc.LazyWritePeriodMs)
	assert.Equal(t, 10, kc.MaxConsecutiveFailures)
	assert.Nil(t, kc.Validate())

	cfg, err := ParseConfigJson(nil)
	assert.Nil(t, err)
	assert.Equal(t, ST_Memory, cfg.Store.Type)
	assert.Equal(t, 10, cfg.Kind("unknown").ReplicaCount)
}

func TestParseJson(t *testing.T) {
	data := `{"kinds":{"prefs":{"replica_count":3,"replication_policy":"at_least_once","lazy_write":true,"period_sec":2}},
	          "store":{"type":"etcd","etcd_endpoints":["etcd-0:2379"]}}`
	cfg, err := ParseConfigJson([]byte(data))
	assert.Nil(t, err)
	kc := cfg.Kind("prefs")
	assert.Equal(t, 3, kc.ReplicaCount)
	assert.Equal(t, RP_AtLeastOnce, kc.ReplicationPolicy)
	assert.True(t, kc.LazyWrite)
	assert.Equal(t, 2000, kc.LazyWritePeriodMs)
	assert.Equal(t, ST_Etcd, cfg.Store.Type)
	assert.Equal(t, []string{"etcd-0:2379"}, cfg.Store.EtcdEndpoints)
}

func TestParseYamlFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swmr.yaml")
	content := `
kinds:
  prefs:
    replica_count: 4
    topology: static
store:
  type: mongo
  mongo_database: prefs
`
	assert.Nil(t, os.WriteFile(path, []byte(content), 0o644))
	cfg, err := LoadFromFile(path)
	assert.Nil(t, err)
	assert.Equal(t, 4, cfg.Kind("prefs").ReplicaCount)
	assert.Equal(t, TT_Static, cfg.Kind("prefs").Topology)
	assert.Equal(t, ST_Mongo, cfg.Store.Type)
	assert.Equal(t, "prefs", cfg.Store.MongoDatabase)
	assert.Equal(t, "grain_state", cfg.Store.MongoCollection)
}

func TestValidationErrors(t *testing.T) {
	_, err := ParseConfigJson([]byte(`{"kinds":{"prefs":{"replica_count":0}}}`))
	assert.True(t, kerror.IsType(err, "InvalidReplicaCount"))
	assert.Equal(t, 400, kerror.As(err).GetHttpErrorCode())

	_, err = ParseConfigJson([]byte(`{"kinds":{"prefs":{"replication_policy":"sometimes"}}}`))
	assert.True(t, kerror.IsType(err, "InvalidReplicationPolicy"))

	_, err = ParseConfigJson([]byte(`{"store":{"type":"cassandra"}}`))
	assert.True(t, kerror.IsType(err, "InvalidStoreConfig"))

	_, err = ParseConfigJson([]byte(`{"kinds":{"prefs":{"mailbox_size":-1}}}`))
	assert.True(t, kerror.IsType(err, "InvalidMailboxSize"))

	_, err = ParseConfigJson([]byte(`{not json`))
	assert.True(t, kerror.IsType(err, "UnmarshalError"))

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, kerror.IsType(err, "ConfigReadError"))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SWMR_REPLICA_COUNT", "5")
	t.Setenv("SWMR_LAZY_WRITE", "yes")
	t.Setenv("SWMR_STORE_TYPE", "etcd")
	t.Setenv("ETCD_ENDPOINTS", "a:2379,b:2379")
	cfg, err := ParseConfigJson([]byte(`{"kinds":{"prefs":{"replica_count":3}}}`))
	assert.Nil(t, err)
	assert.Equal(t, 5, cfg.Kind("prefs").ReplicaCount)
	assert.True(t, cfg.Kind("prefs").LazyWrite)
	assert.Equal(t, ST_Etcd, cfg.Store.Type)
	assert.Equal(t, []string{"a:2379", "b:2379"}, cfg.Store.EtcdEndpoints)
}

func TestZeroMailboxSizeIsUnbounded(t *testing.T) {
	cfg, err := ParseConfigJson([]byte(`{"kinds":{"prefs":{"mailbox_size":0}}}`))
	assert.Nil(t, err)
	assert.Equal(t, 0, cfg.Kind("prefs").MailboxSize)
}

package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "POA_"

type lookupFunc func(key string) (string, bool)

// applyEnv overrides cfg from POA_* variables. Malformed values are errors.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("MODE", &cfg.Alignment.Mode)
	e.int32("MATCH", &cfg.Alignment.Match)
	e.int32("MISMATCH", &cfg.Alignment.Mismatch)
	e.int32("GAP_OPEN", &cfg.Alignment.Gap.Open)
	e.int32("GAP_EXTEND", &cfg.Alignment.Gap.Extend)

	e.str("RESULT_STRATEGY", &cfg.Result.Strategy)
	e.int("RESULT_CAPACITY", &cfg.Result.Capacity)

	e.int("WORKERS", &cfg.Workers.Count)
	e.int("QUEUE_SIZE", &cfg.Workers.QueueSize)

	e.bool("CACHE_ENABLED", &cfg.Cache.Enabled)
	e.str("CACHE_PATH", &cfg.Cache.Path)
	e.duration("CACHE_TTL", &cfg.Cache.TTL)

	e.bool("ARROW_ENABLED", &cfg.Arrow.Enabled)
	e.str("ARROW_ADDR", &cfg.Arrow.Address)
	e.bool("AUTH_ENABLED", &cfg.Arrow.AuthEnabled)
	e.str("AUTH_TOKEN", &cfg.Arrow.AuthToken)

	e.bool("GRPC_ENABLED", &cfg.GRPC.Enabled)
	e.str("GRPC_ADDR", &cfg.GRPC.Address)

	e.bool("ZMQ_ENABLED", &cfg.ZMQ.Enabled)
	e.str("ZMQ_ADDR", &cfg.ZMQ.Address)

	e.bool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	e.str("METRICS_ADDR", &cfg.Metrics.Address)

	e.str("LOG_LEVEL", &cfg.Log.Level)
	e.str("LOG_FORMAT", &cfg.Log.Format)

	return e.err
}

// envReader records the first parse failure and skips the rest.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(EnvPrefix + name)
	return v, ok && v != ""
}

func (e *envReader) fail(name, v string, err error) {
	e.err = fmt.Errorf("env %s%s=%q: %w", EnvPrefix, name, v, err)
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) int(name string, dst *int) {
	if v, ok := e.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) int32(name string, dst *int32) {
	if v, ok := e.get(name); ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = int32(n)
	}
}

func (e *envReader) bool(name string, dst *bool) {
	if v, ok := e.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = d
	}
}

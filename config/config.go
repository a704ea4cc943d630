package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DatabaseSchemePostgres is the postgres database scheme identifier
	DatabaseSchemePostgres = "postgres"
)

// TrustPolicy decides which random values a finalizer may submit.
type TrustPolicy string

const (
	// TrustOracle accepts only the value delivered by the oracle.
	TrustOracle TrustPolicy = "oracle"
	// TrustFinalizer lets the finalizer supply the value when the oracle has
	// not delivered yet.
	TrustFinalizer TrustPolicy = "finalizer"
)

type Config struct {
	MinStake          uint64        // minimum stake, in base units, required to commit
	Finalizer         string        // participant allowed to finalize rounds
	TrustPolicy       TrustPolicy   // oracle or finalizer
	AutoFinalize      bool          // finalize as soon as the oracle delivers
	RevealTimeout     time.Duration // 0 waits for every committed participant
	RandomnessTimeout time.Duration // 0 waits forever for the oracle
	SweepInterval     time.Duration
	RequestTimeout    time.Duration // bound on a single oracle request

	OracleDelay  time.Duration // delay of the in-process beacon
	OracleURL    string        // optional: remote oracle request endpoint
	OracleKey    string        // hex public key of the remote oracle
	OracleAddr   string        // listen address of the oracle service
	CallbackAddr string        // listen address for remote deliveries

	// ORACLE_URL=discover scans these local ports for an announced oracle.
	DiscoveryStart uint16
	DiscoveryEnd   uint16

	DBDialect string // postgres only
	DBDsn     string // DSN string passed to GORM driver
	Debug     bool
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func getenvUint(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid %s=%q, using %d\n", key, v, def)
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		fmt.Fprintf(os.Stderr, "warning: invalid %s=%q, using %s\n", key, v, def)
		return def
	}
	return d
}

// getenvPortRange reads a "start-end" or single port value.
func getenvPortRange(key string, defStart, defEnd uint16) (uint16, uint16) {
	v := os.Getenv(key)
	if v == "" {
		return defStart, defEnd
	}
	start, end, err := parsePortRange(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid %s=%q, using %d-%d\n", key, v, defStart, defEnd)
		return defStart, defEnd
	}
	return start, end
}

func parsePortRange(v string) (uint16, uint16, error) {
	lo, hi, found := strings.Cut(v, "-")
	start, err := strconv.ParseUint(strings.TrimSpace(lo), 10, 16)
	if err != nil {
		return 0, 0, err
	}
	end := start
	if found {
		if end, err = strconv.ParseUint(strings.TrimSpace(hi), 10, 16); err != nil {
			return 0, 0, err
		}
	}
	if start == 0 || end < start {
		return 0, 0, fmt.Errorf("invalid port range %q", v)
	}
	return uint16(start), uint16(end), nil
}

// parseDatabaseURL interprets DATABASE_URL and returns (dialect, dsn).
// Supported schemes: postgres, postgresql.
func parseDatabaseURL(databaseURL string) (string, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", err
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case DatabaseSchemePostgres, "postgresql":
		// GORM postgres driver accepts URL DSN as-is
		return DatabaseSchemePostgres, databaseURL, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %s", u.Scheme)
	}
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		MinStake:       10_000_000_000_000_000, // 0.01 units of 1e18
		Finalizer:      "owner",
		TrustPolicy:    TrustOracle,
		AutoFinalize:   true,
		SweepInterval:  time.Second,
		RequestTimeout: 10 * time.Second,
		OracleDelay:    500 * time.Millisecond,
		OracleAddr:     "127.0.0.1:8645",
		CallbackAddr:   "127.0.0.1:0",
		DiscoveryStart: 9000,
		DiscoveryEnd:   9010,
	}
}

func Load() Config {
	def := Default()
	cfg := Config{
		MinStake:          getenvUint("MIN_STAKE", def.MinStake),
		Finalizer:         getenv("FINALIZER", def.Finalizer),
		TrustPolicy:       TrustPolicy(strings.ToLower(getenv("TRUST_POLICY", string(def.TrustPolicy)))),
		AutoFinalize:      getenvBool("AUTO_FINALIZE", def.AutoFinalize),
		RevealTimeout:     getenvDuration("REVEAL_TIMEOUT", def.RevealTimeout),
		RandomnessTimeout: getenvDuration("RANDOMNESS_TIMEOUT", def.RandomnessTimeout),
		SweepInterval:     getenvDuration("SWEEP_INTERVAL", def.SweepInterval),
		RequestTimeout:    getenvDuration("REQUEST_TIMEOUT", def.RequestTimeout),
		OracleDelay:       getenvDuration("ORACLE_DELAY", def.OracleDelay),
		OracleURL:         os.Getenv("ORACLE_URL"),
		OracleKey:         os.Getenv("ORACLE_PUBLIC_KEY"),
		OracleAddr:        getenv("ORACLE_ADDR", def.OracleAddr),
		CallbackAddr:      getenv("CALLBACK_ADDR", def.CallbackAddr),
		Debug:             getenvBool("DEBUG", false),
	}
	cfg.DiscoveryStart, cfg.DiscoveryEnd = getenvPortRange("DISCOVERY_PORTS", def.DiscoveryStart, def.DiscoveryEnd)

	if dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL")); dbURL != "" {
		if dialect, dsn, err := parseDatabaseURL(dbURL); err == nil {
			cfg.DBDialect = dialect
			cfg.DBDsn = dsn
		} else {
			fmt.Fprintf(os.Stderr, "warning: invalid DATABASE_URL, disabling persistence: %v\n", err)
		}
	}

	return cfg
}

// Validate reports settings the protocol cannot run with.
func (c Config) Validate() error {
	switch c.TrustPolicy {
	case TrustOracle, TrustFinalizer:
	default:
		return fmt.Errorf("unknown TRUST_POLICY %q", c.TrustPolicy)
	}
	if c.Finalizer == "" {
		return fmt.Errorf("FINALIZER must not be empty")
	}
	if c.SweepInterval <= 0 && (c.RevealTimeout > 0 || c.RandomnessTimeout > 0) {
		return fmt.Errorf("timeouts need a positive SWEEP_INTERVAL")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("min_stake=%d finalizer=%s trust=%s db=%s", c.MinStake, c.Finalizer, c.TrustPolicy, c.DBDialect)
}

// DebugString returns a human-friendly configuration string with masked secrets.
func (c Config) DebugString() string {
	return fmt.Sprintf(
		"min_stake=%d finalizer=%s trust=%s auto_finalize=%t reveal_timeout=%s randomness_timeout=%s oracle_url=%s db=%s dsn=%s",
		c.MinStake,
		c.Finalizer,
		c.TrustPolicy,
		c.AutoFinalize,
		c.RevealTimeout,
		c.RandomnessTimeout,
		c.OracleURL,
		c.DBDialect,
		maskDSN(c.DBDialect, c.DBDsn),
	)
}

func maskDSN(dialect, dsn string) string {
	switch strings.ToLower(dialect) {
	case DatabaseSchemePostgres:
		if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
			if u.User != nil {
				username := u.User.Username()
				u.User = url.User(username)
			}
			return u.String()
		}
		// Fallback for DSN as key-value list
		parts := strings.Fields(dsn)
		for i, p := range parts {
			lower := strings.ToLower(p)
			if strings.HasPrefix(lower, "password=") {
				parts[i] = "password=***"
			}
		}
		return strings.Join(parts, " ")
	default:
		return dsn
	}
}

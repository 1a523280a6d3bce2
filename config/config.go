package config

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"time"

	"github.com/OdyseeTeam/lattice-wallet/blockchain"
	"github.com/OdyseeTeam/lattice-wallet/replica"
	"github.com/OdyseeTeam/lattice-wallet/storage"

	"github.com/cockroachdb/errors"
)

// Duration reads "5s"-style strings
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "duration must be a string")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.WithStack(err)
	}
	d.Duration = v
	return nil
}

type Config struct {
	NodeURL string `json:"node_url"`

	// Seed is the hex wallet seed; Accounts are the key indices to track
	Seed            string   `json:"seed"`
	Accounts        []uint32 `json:"accounts"`
	Representatives []string `json:"representatives"`

	// DataDir holds the block journal, storage.Memory keeps it in memory
	DataDir    string `json:"data_dir"`
	StatusAddr string `json:"status_addr"`
	LogLevel   string `json:"log_level"`
	LogJSON    bool   `json:"log_json"`

	TickInterval        Duration `json:"tick_interval"`
	RetryInterval       Duration `json:"retry_interval"`
	PollMin             Duration `json:"poll_min"`
	PollMax             Duration `json:"poll_max"`
	ResubscribeInterval Duration `json:"resubscribe_interval"`
	RequestTimeout      Duration `json:"request_timeout"`

	ReceivablesCount int `json:"receivables_count"`
	RecentBlocks     int `json:"recent_blocks"`
}

func Default() Config {
	r := replica.DefaultConfig()
	return Config{
		NodeURL:             "ws://127.0.0.1:7077",
		Accounts:            []uint32{0},
		DataDir:             storage.Memory,
		StatusAddr:          ":8855",
		LogLevel:            "info",
		TickInterval:        Duration{time.Second},
		RetryInterval:       Duration{r.RetryInterval},
		PollMin:             Duration{r.PollMin},
		PollMax:             Duration{r.PollMax},
		ResubscribeInterval: Duration{r.ResubscribeInterval},
		RequestTimeout:      Duration{r.RequestTimeout},
		ReceivablesCount:    r.ReceivablesCount,
		RecentBlocks:        r.RecentBlocks,
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, errors.Wrapf(err, "reading %s", path)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, errors.Wrapf(err, "parsing %s", path)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.NodeURL == "" {
		return errors.New("node_url is required")
	}
	if c.PollMax.Duration < c.PollMin.Duration {
		return errors.Newf("poll_max %s is below poll_min %s", c.PollMax, c.PollMin)
	}
	if c.Seed != "" {
		if _, err := c.SeedBytes(); err != nil {
			return err
		}
	}
	if _, err := c.RepresentativeAccounts(); err != nil {
		return err
	}
	return nil
}

func (c Config) SeedBytes() ([32]byte, error) {
	var seed [32]byte
	raw, err := hex.DecodeString(c.Seed)
	if err != nil {
		return seed, errors.Wrap(err, "seed")
	}
	if len(raw) != len(seed) {
		return seed, errors.Newf("seed is %d bytes, want %d", len(raw), len(seed))
	}
	copy(seed[:], raw)
	return seed, nil
}

func (c Config) RepresentativeAccounts() ([]blockchain.Account, error) {
	out := make([]blockchain.Account, 0, len(c.Representatives))
	for _, r := range c.Representatives {
		a, err := blockchain.ParseAccount(r)
		if err != nil {
			return nil, errors.Wrapf(err, "representative %q", r)
		}
		out = append(out, a)
	}
	return out, nil
}

// Replica is the engine's share of the config
func (c Config) Replica() replica.Config {
	r := replica.DefaultConfig()
	r.RetryInterval = c.RetryInterval.Duration
	r.PollMin = c.PollMin.Duration
	r.PollMax = c.PollMax.Duration
	r.ResubscribeInterval = c.ResubscribeInterval.Duration
	r.RequestTimeout = c.RequestTimeout.Duration
	r.ReceivablesCount = c.ReceivablesCount
	r.RecentBlocks = c.RecentBlocks
	return r
}

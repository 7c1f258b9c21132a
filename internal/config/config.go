package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a run
type Config struct {
	LogLevel string         `yaml:"log_level"`
	RPC      RPCConfig      `yaml:"rpc"`
	Node     NodeConfig     `yaml:"node"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Report   ReportConfig   `yaml:"report"`
}

// RPCConfig holds the node's JSON-RPC endpoint and credentials
type RPCConfig struct {
	Host    string `yaml:"host"`
	User    string `yaml:"user"`
	Pass    string `yaml:"pass"`
	Network string `yaml:"network"`
}

// NodeConfig controls whether the CLI starts and stops bitcoind itself
type NodeConfig struct {
	Manage bool   `yaml:"manage"`
	Script string `yaml:"script"`
}

// WorkflowConfig holds the wallet names, labels and amounts of a run
type WorkflowConfig struct {
	MinerWallet   string  `yaml:"miner_wallet"`
	TraderWallet  string  `yaml:"trader_wallet"`
	MinerLabel    string  `yaml:"miner_label"`
	TraderLabel   string  `yaml:"trader_label"`
	MatureBlocks  int64   `yaml:"mature_blocks"`
	ConfirmBlocks int64   `yaml:"confirm_blocks"`
	SendAmount    float64 `yaml:"send_amount"` // BTC
	SendMethod    string  `yaml:"send_method"` // sendtoaddress or send
}

// ReportConfig selects the report format and where it goes
type ReportConfig struct {
	Format string      `yaml:"format"`
	Path   string      `yaml:"path"`
	Kafka  KafkaConfig `yaml:"kafka"`
}

// KafkaConfig enables the Kafka sink when Broker is set
type KafkaConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
}

// Enabled reports whether reports go to Kafka instead of a file.
func (k KafkaConfig) Enabled() bool {
	return k.Broker != ""
}

// Default returns the configuration of a local regtest node.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		RPC: RPCConfig{
			Host:    "127.0.0.1:18443",
			User:    "alice",
			Pass:    "password",
			Network: "regtest",
		},
		Workflow: WorkflowConfig{
			MinerWallet:   "Miner",
			TraderWallet:  "Trader",
			MinerLabel:    "Mining Reward",
			TraderLabel:   "Received",
			MatureBlocks:  103,
			ConfirmBlocks: 1,
			SendAmount:    20,
			SendMethod:    "sendtoaddress",
		},
		Report: ReportConfig{
			Format: "text",
			Path:   "out.txt",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists), a .env file (if present) and environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Not fatal, as env vars might be set externally
	_ = godotenv.Load()

	cfg.loadEnv()
	return cfg, nil
}

func (c *Config) loadEnv() {
	setString(&c.LogLevel, "PAYFLOW_LOG_LEVEL")

	setString(&c.RPC.Host, "PAYFLOW_RPC_HOST")
	setString(&c.RPC.User, "PAYFLOW_RPC_USER")
	setString(&c.RPC.Pass, "PAYFLOW_RPC_PASS")
	setString(&c.RPC.Network, "PAYFLOW_NETWORK")

	if manage := os.Getenv("PAYFLOW_MANAGE_NODE"); manage != "" {
		c.Node.Manage = manage == "true" || manage == "1"
	}
	setString(&c.Node.Script, "PAYFLOW_MANAGER_SCRIPT")

	if amount := os.Getenv("PAYFLOW_SEND_AMOUNT"); amount != "" {
		if a, err := strconv.ParseFloat(amount, 64); err == nil {
			c.Workflow.SendAmount = a
		}
	}
	setString(&c.Workflow.SendMethod, "PAYFLOW_SEND_METHOD")

	setString(&c.Report.Format, "PAYFLOW_REPORT_FORMAT")
	setString(&c.Report.Path, "PAYFLOW_REPORT_PATH")
	setString(&c.Report.Kafka.Broker, "PAYFLOW_KAFKA_BROKER")
	setString(&c.Report.Kafka.Topic, "PAYFLOW_KAFKA_TOPIC")
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.RPC.Host == "" {
		errs = append(errs, errors.New("rpc.host is required"))
	}
	if strings.Contains(c.RPC.Host, "://") {
		errs = append(errs, fmt.Errorf("rpc.host %q must not include a scheme", c.RPC.Host))
	}
	if c.RPC.User == "" || c.RPC.Pass == "" {
		errs = append(errs, errors.New("rpc.user and rpc.pass are required"))
	}
	switch c.RPC.Network {
	case "mainnet", "main", "testnet3", "test", "regtest", "signet", "simnet":
	default:
		errs = append(errs, fmt.Errorf("unknown rpc.network %q", c.RPC.Network))
	}

	w := c.Workflow
	if w.MinerWallet == "" || w.TraderWallet == "" {
		errs = append(errs, errors.New("workflow wallet names are required"))
	} else if w.MinerWallet == w.TraderWallet {
		errs = append(errs, fmt.Errorf("workflow wallets must differ, both are %q", w.MinerWallet))
	}
	if w.MatureBlocks <= 0 {
		errs = append(errs, fmt.Errorf("workflow.mature_blocks must be positive, got %d", w.MatureBlocks))
	}
	if w.ConfirmBlocks <= 0 {
		errs = append(errs, fmt.Errorf("workflow.confirm_blocks must be positive, got %d", w.ConfirmBlocks))
	}
	if w.SendAmount <= 0 {
		errs = append(errs, fmt.Errorf("workflow.send_amount must be positive, got %v", w.SendAmount))
	}
	switch w.SendMethod {
	case "sendtoaddress", "send":
	default:
		errs = append(errs, fmt.Errorf("unknown workflow.send_method %q", w.SendMethod))
	}

	switch strings.ToLower(c.Report.Format) {
	case "text", "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("unknown report.format %q", c.Report.Format))
	}
	if c.Report.Kafka.Enabled() {
		if c.Report.Kafka.Topic == "" {
			errs = append(errs, errors.New("report.kafka.topic is required with a broker"))
		}
	} else if c.Report.Path == "" {
		errs = append(errs, errors.New("report.path is required without kafka"))
	}

	return errors.Join(errs...)
}

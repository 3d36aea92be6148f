package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/avm"
)

// config is read from .env, then the environment, then flags.
type config struct {
	Port       string
	DataDir    string
	UploadsDir string

	// FacilitatorMnemonic is the 25-word mnemonic of the fee-paying account.
	FacilitatorMnemonic string
	FeePayer            bool

	// FacilitatorURL, when set, uses a remote facilitator instead of the
	// in-process one.
	FacilitatorURL string

	// JWTSecret protects the facilitator API. Empty leaves it open.
	JWTSecret string

	AlgodMainnetURL string
	AlgodTestnetURL string
	AlgodToken      string

	EnableMCP bool

	ShutdownTimeout time.Duration
}

func loadConfig(args []string) (config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	cfg := config{
		Port:                envOr("PORT", "3000"),
		DataDir:             envOr("DATA_DIR", "pb_data"),
		UploadsDir:          envOr("UPLOADS_DIR", "uploads"),
		FacilitatorMnemonic: os.Getenv("FACILITATOR_MNEMONIC"),
		FeePayer:            envBool("FACILITATOR_FEE_PAYER", true),
		FacilitatorURL:      os.Getenv("FACILITATOR_URL"),
		JWTSecret:           os.Getenv("FACILITATOR_JWT_SECRET"),
		AlgodMainnetURL:     envOr("ALGOD_MAINNET_URL", x402.AlgorandMainnet.AlgodURL),
		AlgodTestnetURL:     envOr("ALGOD_TESTNET_URL", x402.AlgorandTestnet.AlgodURL),
		AlgodToken:          envOr("ALGOD_TOKEN", avm.PublicToken),
		EnableMCP:           envBool("ENABLE_MCP", false),
		ShutdownTimeout:     30 * time.Second,
	}

	fs := flag.NewFlagSet("paylink", flag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "Server port")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "PocketBase data directory")
	fs.StringVar(&cfg.UploadsDir, "uploads-dir", cfg.UploadsDir, "Directory for uploaded files")
	fs.StringVar(&cfg.FacilitatorURL, "facilitator", cfg.FacilitatorURL, "Remote facilitator URL (default: in-process)")
	fs.BoolVar(&cfg.FeePayer, "fee-payer", cfg.FeePayer, "Cover payers' network fees from the facilitator account")
	fs.BoolVar(&cfg.EnableMCP, "mcp", cfg.EnableMCP, "Serve the facilitator as MCP tools at /mcp")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Time allowed for pending settlements on shutdown")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if cfg.FacilitatorURL == "" && cfg.FacilitatorMnemonic == "" {
		return config{}, errors.New("FACILITATOR_MNEMONIC is not set")
	}
	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		return config{}, fmt.Errorf("FACILITATOR_JWT_SECRET must be at least 32 bytes, got %d", len(cfg.JWTSecret))
	}
	return cfg, nil
}

// nodeConfigs returns the algod endpoints for both networks.
func (c config) nodeConfigs() []avm.NodeConfig {
	return []avm.NodeConfig{
		{Network: x402.NetworkAlgorand, Address: c.AlgodMainnetURL, Token: c.AlgodToken},
		{Network: x402.NetworkAlgorandTestnet, Address: c.AlgodTestnetURL, Token: c.AlgodToken},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

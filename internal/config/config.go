package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"curveSwap/internal/model"
	"curveSwap/internal/payout"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel string
	Store    string
	PgDSN    string
	Journal  string

	RPCURL          string
	ChainRoyalties  bool
	VerifyOwnership bool
	MaxRetries      int
	RetryBackoff    time.Duration

	Denom     string
	Params    payout.Params
	Royalties map[common.Address]payout.Royalty
}

// NeedsChain reports whether any component reads from the RPC endpoint.
func (c Config) NeedsChain() bool {
	return c.ChainRoyalties || c.VerifyOwnership
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CURVESWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("store", StoreMemory)
	v.SetDefault("journal", "")
	v.SetDefault("denom", "ustars")
	v.SetDefault("trading-fee-percent", "0.02")
	v.SetDefault("listing-fee", "0")
	v.SetDefault("chain-royalties", false)
	v.SetDefault("verify-ownership", false)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LogLevel:        v.GetString("log-level"),
		Store:           v.GetString("store"),
		PgDSN:           v.GetString("pg-dsn"),
		Journal:         v.GetString("journal"),
		RPCURL:          v.GetString("rpc"),
		ChainRoyalties:  v.GetBool("chain-royalties"),
		VerifyOwnership: v.GetBool("verify-ownership"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		Denom:           v.GetString("denom"),
	}

	var err error
	if cfg.Params, err = loadParams(v); err != nil {
		return Config{}, err
	}
	if cfg.Royalties, err = loadRoyalties(v); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.PgDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.NeedsChain() && c.RPCURL == "" {
		return fmt.Errorf("rpc url is required for chain royalties and ownership checks")
	}
	return c.Params.Validate()
}

func loadParams(v *viper.Viper) (payout.Params, error) {
	fee, err := decimal.NewFromString(v.GetString("trading-fee-percent"))
	if err != nil {
		return payout.Params{}, fmt.Errorf("trading-fee-percent: %w", err)
	}
	listing, err := model.ParseAmount(v.GetString("listing-fee"))
	if err != nil {
		return payout.Params{}, fmt.Errorf("listing-fee: %w", err)
	}
	burn, err := optionalAddress(v, "fair-burn-recipient")
	if err != nil {
		return payout.Params{}, err
	}
	custody, err := optionalAddress(v, "custody")
	if err != nil {
		return payout.Params{}, err
	}
	return payout.Params{
		TradingFeePercent: fee,
		ListingFee:        listing,
		FairBurnRecipient: burn,
		Custody:           custody,
	}, nil
}

func optionalAddress(v *viper.Viper, key string) (common.Address, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return common.Address{}, nil
	}
	addresses, err := ParseAddresses([]string{raw})
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", key, err)
	}
	return addresses[0], nil
}

// loadRoyalties reads the static royalty table. The config file form is a
// list of {collection, percent, recipient}; the env and flag form is a comma
// list of collection:percent:recipient.
func loadRoyalties(v *viper.Viper) (map[common.Address]payout.Royalty, error) {
	if !v.IsSet("royalties") {
		return nil, nil
	}

	var entries [][3]string
	switch typed := v.Get("royalties").(type) {
	case []interface{}:
		for _, item := range typed {
			fields, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("royalties: unexpected entry %v", item)
			}
			entries = append(entries, [3]string{
				fmt.Sprintf("%v", fields["collection"]),
				fmt.Sprintf("%v", fields["percent"]),
				fmt.Sprintf("%v", fields["recipient"]),
			})
		}
	default:
		for _, item := range getStringSlice(v, "royalties") {
			parts := strings.Split(item, ":")
			if len(parts) != 3 {
				return nil, fmt.Errorf("royalties: %q is not collection:percent:recipient", item)
			}
			entries = append(entries, [3]string{parts[0], parts[1], parts[2]})
		}
	}

	out := make(map[common.Address]payout.Royalty, len(entries))
	for _, e := range entries {
		addresses, err := ParseAddresses([]string{e[0], e[2]})
		if err != nil || len(addresses) != 2 {
			return nil, fmt.Errorf("royalties: entry %v: invalid address", e)
		}
		pct, err := decimal.NewFromString(strings.TrimSpace(e[1]))
		if err != nil {
			return nil, fmt.Errorf("royalties: entry %v: %w", e, err)
		}
		royalty := payout.Royalty{Percent: pct, Recipient: addresses[1]}
		if err := royalty.Validate(); err != nil {
			return nil, fmt.Errorf("royalties: %w", err)
		}
		out[addresses[0]] = royalty
	}
	return out, nil
}

// ParseAddresses converts hex strings into addresses, skipping blanks.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

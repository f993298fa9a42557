// Package params holds the risk core's tunable constants: margin
// ratios, warmup/funding timing, liquidation buffers and dust
// thresholds. Structured after the teacher node's params/config.go
// Default()/LoadFromEnv() pattern.
package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Margin holds the IM/MM basis-point requirements and the preliq
// health buffer (spec §4.6).
type Margin struct {
	ImrBps             uint32
	MmrBps             uint32
	PreliqBufferAbs    int64
	LiquidationFeeBps  uint32
	KeeperFeeShareBps  uint32
	MinLiquidationAbs  int64
}

// Warmup holds the time-vesting period used by both trade-time credit
// and crisis-time materialization (spec §4.6, §4.7).
type Warmup struct {
	PeriodSlots uint64
	TauSlots    uint64
}

// Funding holds the premium sensitivity and minimum update interval
// (spec §4.3). Sensitivity is the multiplier update_funding.rs's
// worked FUNDING_SENSITIVITY constant applies to the raw premium;
// SensitivityScale is the fixed-point denominator that multiplier is
// expressed against.
type Funding struct {
	Sensitivity      int64
	SensitivityScale int64
	MinIntervalSecs  int64
}

// Fees holds the taker fee and per-slot maintenance fee rate (spec
// §4.5, §4.6).
type Fees struct {
	TakerFeeBps          uint32
	MaintenanceFeePerSlot int64
}

// Config is the full set of engine tunables.
type Config struct {
	Margin  Margin
	Warmup  Warmup
	Funding Funding
	Fees    Fees
}

// Default returns the engine's baseline tunables.
func Default() Config {
	return Config{
		Margin: Margin{
			ImrBps:            500,
			MmrBps:            300,
			PreliqBufferAbs:   10_000_000,
			LiquidationFeeBps: 100,
			KeeperFeeShareBps: 1000,
			MinLiquidationAbs: 1_000,
		},
		Warmup: Warmup{
			PeriodSlots: 216_000, // ~1 day at 400ms slots
			TauSlots:    216_000,
		},
		Funding: Funding{
			Sensitivity:      800, // update_funding.rs's worked FUNDING_SENSITIVITY (8bps/hour at a 1% premium)
			SensitivityScale: 1_000_000,
			MinIntervalSecs:  60,
		},
		Fees: Fees{
			TakerFeeBps:           10,
			MaintenanceFeePerSlot: 1,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables, overriding Default() values found. Priority:
// ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("MARGIN_IMR_BPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Margin.ImrBps = uint32(n)
		}
	}
	if v := os.Getenv("MARGIN_MMR_BPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Margin.MmrBps = uint32(n)
		}
	}
	if v := os.Getenv("MARGIN_PRELIQ_BUFFER_ABS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Margin.PreliqBufferAbs = n
		}
	}
	if v := os.Getenv("MARGIN_LIQUIDATION_FEE_BPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Margin.LiquidationFeeBps = uint32(n)
		}
	}
	if v := os.Getenv("MARGIN_KEEPER_FEE_SHARE_BPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Margin.KeeperFeeShareBps = uint32(n)
		}
	}
	if v := os.Getenv("MARGIN_MIN_LIQUIDATION_ABS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Margin.MinLiquidationAbs = n
		}
	}
	if v := os.Getenv("WARMUP_PERIOD_SLOTS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Warmup.PeriodSlots = n
		}
	}
	if v := os.Getenv("WARMUP_TAU_SLOTS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Warmup.TauSlots = n
		}
	}
	if v := os.Getenv("FUNDING_SENSITIVITY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Funding.Sensitivity = n
		}
	}
	if v := os.Getenv("FUNDING_SENSITIVITY_SCALE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Funding.SensitivityScale = n
		}
	}
	if v := os.Getenv("FUNDING_MIN_INTERVAL_SECS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Funding.MinIntervalSecs = n
		}
	}
	if v := os.Getenv("FEES_TAKER_BPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fees.TakerFeeBps = uint32(n)
		}
	}
	if v := os.Getenv("FEES_MAINTENANCE_PER_SLOT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Fees.MaintenanceFeePerSlot = n
		}
	}

	return cfg
}

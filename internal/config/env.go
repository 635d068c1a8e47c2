package config

import (
	"os"
	"strconv"
)

// applyEnv layers environment overrides on top of file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("DAYBOARD_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DAYBOARD_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("DAYBOARD_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := getEnvInt("DAYBOARD_TOPUP_HORIZON_DAYS"); v > 0 {
		c.Recurring.TopUpHorizonDays = v
	}
}

func getEnvInt(key string) int {
	val := os.Getenv(key)
	if val == "" {
		return 0
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return num
}

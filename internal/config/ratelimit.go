package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LimitType names a rate-limit bucket family.  Each endpoint is attached to
// exactly one type and clients are tracked per type.
type LimitType string

const (
	LimitGeneral      LimitType = "general"
	LimitAuth         LimitType = "auth"
	LimitData         LimitType = "data"
	LimitRegistration LimitType = "registration"
	LimitAIStart      LimitType = "ai_start"
	LimitAIContinue   LimitType = "ai_continue"
	LimitAIPublish    LimitType = "ai_publish"
	LimitSaveParsed   LimitType = "save_parsed"
)

// Limit is one bucket definition: Max requests per Window.
type Limit struct {
	Type    LimitType
	Max     int
	Window  time.Duration
	Message string
}

type RateLimitConfig struct {
	Enabled bool
	Prefix  string
	Debug   bool
	Limits  map[LimitType]Limit
}

// Types lists the configured limit types in a stable order.
func (c RateLimitConfig) Types() []string {
	order := []LimitType{LimitGeneral, LimitAuth, LimitData, LimitRegistration,
		LimitAIStart, LimitAIContinue, LimitAIPublish, LimitSaveParsed}
	out := make([]string, 0, len(order))
	for _, t := range order {
		if _, ok := c.Limits[t]; ok {
			out = append(out, string(t))
		}
	}
	return out
}

func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled: envBool("RATE_LIMIT_ENABLED", true),
		Prefix:  envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:   envBool("RATE_LIMIT_DEBUG", false),
		Limits:  map[LimitType]Limit{},
	}
	add := func(t LimitType, max int, window time.Duration, msg string) {
		key := "RATE_LIMIT_" + strings.ToUpper(string(t))
		l := Limit{
			Type:    t,
			Max:     envInt(key+"_MAX", max),
			Window:  envDur(key+"_WINDOW", window),
			Message: msg,
		}
		if l.Max < 1 { l.Max = 1 }
		if l.Window <= 0 { l.Window = window }
		def.Limits[t] = l
	}
	add(LimitGeneral, 100, 15*time.Minute, "Too many requests, please try again later.")
	add(LimitAuth, 20, 15*time.Minute, "Too many authentication attempts, please try again later.")
	add(LimitData, 50, 5*time.Minute, "Too many data requests, please try again later.")
	add(LimitRegistration, 5, time.Hour, "Too many registration attempts, please try again later.")
	add(LimitAIStart, 10, time.Minute, "Too many profile sessions started, please wait a minute.")
	add(LimitAIContinue, 30, time.Minute, "Too many messages, please slow down.")
	add(LimitAIPublish, 5, time.Minute, "Too many publish attempts, please wait a minute.")
	add(LimitSaveParsed, 10, time.Minute, "Too many save attempts, please wait a minute.")
	return def
}

func envStr(k, d string) string { if v := os.Getenv(k); v != "" { return v }; return d }
func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" { return d }
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON": return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF": return false
	}
	return d
}
func envInt(k string, d int) int {
	v := os.Getenv(k); if v == "" { return d }
	if n, err := strconv.Atoi(v); err == nil { return n }
	return d
}
func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k); if v == "" { return d }
	if dur, err := time.ParseDuration(v); err == nil { return dur }
	return d
}

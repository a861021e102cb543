package config

import (
	"reflect"
	"strings"

	logx "doggobot/pkg/logx"
)

// SummarizeConfigChange lists the top-level sections that differ and safe
// attrs for logging them. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.PollTimeout != nt.PollTimeout || ot.GroupLog != nt.GroupLog ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}
	if ot.Token != nt.Token || ot.TokenFile != nt.TokenFile {
		changed = append(changed, "telegram.token")
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
	}
	if !reflect.DeepEqual(oldCfg.Moderation, newCfg.Moderation) {
		changed = append(changed, "moderation")
	}
	if oldCfg.Report != newCfg.Report {
		changed = append(changed, "report")
		attrs = append(attrs,
			logx.Bool("report.enabled", newCfg.Report.Enabled),
			logx.String("report.schedule", newCfg.Report.Schedule),
		)
	}
	if !reflect.DeepEqual(oldCfg.Web, newCfg.Web) {
		changed = append(changed, "web")
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
	}
	if oldCfg.Timezone != newCfg.Timezone {
		changed = append(changed, "timezone")
	}
	return changed, attrs
}

// RestartRequired reports sections that only take effect on restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram.token", "storage", "web", "metrics", "timezone":
			out = append(out, s)
		}
	}
	return out
}

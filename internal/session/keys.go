package session

import (
	"strings"
	"unicode"
)

const keyPrefix = "cobranzas_v3_"

// AgentKey normalises an agent name for storage keys: whitespace removed,
// lower-cased.
func AgentKey(agent string) string {
	var b strings.Builder
	for _, r := range agent {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// DataKey is where the agent's portfolio is stored.
func DataKey(agent string) string {
	return keyPrefix + "data_" + AgentKey(agent)
}

// SettingsKey is where the agent's settings are stored.
func SettingsKey(agent string) string {
	return keyPrefix + "settings_" + AgentKey(agent)
}

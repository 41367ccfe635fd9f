package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

const redactedPlaceholder = "***"

// FormatRedacted renders the resolved environment values for diagnostics,
// masking every key the Contract marks as secret.
func FormatRedacted(cfg Config) string {
	secrets := make(map[string]bool, len(Contract))
	for _, spec := range Contract {
		if spec.Secret {
			secrets[spec.Key] = true
		}
	}

	lines := make([]string, 0, len(Contract))
	for _, spec := range Contract {
		value := strings.TrimSpace(os.Getenv(spec.Key))
		if value == "" {
			value = spec.Default
		}
		if value != "" && secrets[spec.Key] {
			value = redactedPlaceholder
		}
		lines = append(lines, fmt.Sprintf("%s=%s", spec.Key, value))
	}

	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

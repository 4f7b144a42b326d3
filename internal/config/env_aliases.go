package config

import "strings"

// EnvPrefix prefixes every environment override, e.g. CHEMAGENT_KERNEL_MODE.
const EnvPrefix = "CHEMAGENT"

// DefaultEnvAliases maps configuration keys to the conventional environment
// variables that may also set them.
func DefaultEnvAliases() map[string][]string {
	aliases := map[string][]string{
		"openai_api_key":    {"OPENAI_API_KEY"},
		"anthropic_api_key": {"ANTHROPIC_API_KEY"},
		"tavily_api_key":    {"TAVILY_API_KEY"},
		"chemspace_api_key": {"CHEMSPACE_API_KEY"},
		"rxn4chem_api_key":  {"RXN4CHEM_API_KEY"},
		"kernel.server_url": {"KERNEL_SERVER_URL"},
	}

	copy := make(map[string][]string, len(aliases))
	for key, list := range aliases {
		copy[key] = append([]string(nil), list...)
	}
	return copy
}

// EnvName returns the prefixed variable for key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// envNames lists every variable consulted for key, prefixed name first.
func envNames(key string) []string {
	return append([]string{EnvName(key)}, DefaultEnvAliases()[key]...)
}

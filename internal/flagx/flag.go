// Package flagx lets several components parse their own subset of os.Args
// without tripping over each other's flags.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// ConfigFileEnv names the environment variable consulted when neither -c nor
// -config is given on the command line.
const ConfigFileEnv = "VAULT_CONFIG"

// FilterArgs keeps only the flags listed in allowedFlags, together with their
// values. Both "-f value" and "-f=value" forms are recognised; a following
// argument is taken as the value unless it itself starts with "-".
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// ConfigFilePath returns the JSON config path from -c/-config, falling back
// to $VAULT_CONFIG. Empty means no config file.
func ConfigFilePath() string {
	return configFilePath(os.Args[1:], os.Getenv(ConfigFileEnv))
}

func configFilePath(args []string, fallback string) string {
	var config string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--config"}))

	if config == "" {
		return fallback
	}
	return config
}

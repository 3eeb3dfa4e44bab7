package cobrax

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AddConfigFlag only declares --config: the file is read by GetConfigNameFromArgs before parsing,
// since it supplies the flag defaults.
func AddConfigFlag(fset *pflag.FlagSet) {
	fset.StringP("config", "c", "", "YAML config file")
}

func GetConfigNameFromArgs() string {
	return configNameFromArgs(os.Args)
}

func configNameFromArgs(args []string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "--config" || args[i] == "-c" {
			return args[i+1]
		}
	}
	return ""
}

// LoadConfigFromFile overlays the YAML file on dest, which holds the defaults. An empty name is a no-op.
func LoadConfigFromFile[T any](name string, dest *T) error {
	if name == "" {
		return nil
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("can't read config %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("can't parse config %s: %w", name, err)
	}
	return nil
}

// NewEnv returns a viper instance resolving flag names from PREFIX_FLAG_NAME variables,
// e.g. --prometheus-port from AVMDBG_PROMETHEUS_PORT.
func NewEnv(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyEnv sets every flag not given on the command line from v.
func ApplyEnv(v *viper.Viper, fset *pflag.FlagSet) error {
	var err error
	fset.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed || !v.IsSet(f.Name) {
			return
		}
		if setErr := f.Value.Set(v.GetString(f.Name)); setErr != nil {
			err = fmt.Errorf("invalid value for --%s from environment: %w", f.Name, setErr)
		}
	})
	return err
}

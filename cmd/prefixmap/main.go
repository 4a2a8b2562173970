package main

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/netrangr/prefixmap"
	"github.com/netrangr/prefixmap/netblock"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PREFIXMAP"

var (
	rulesFile string
	logLevel  string
)

// rootCmd resolves each address argument against the rules file by longest
// prefix match.
var rootCmd = &cobra.Command{
	Use:   "prefixmap ADDRESS...",
	Short: "Resolve addresses against a CIDR rules file by longest-prefix match",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return run(args)
	},
	SilenceUsage: true,
}

// rule is one element of the JSON rules file.
type rule struct {
	CIDR  string `json:"cidr"`
	Value string `json:"value"`
}

// initConfig binds flags to PREFIXMAP_* environment variables.
func initConfig() {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	bindFlags(rootCmd, v)
	initLogger()
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		_ = v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix))
		if !f.Changed && v.IsSet(f.Name) {
			_ = cmd.Flags().Set(f.Name, v.GetString(f.Name))
		}
	})
}

func initLogger() {
	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		ll = log.InfoLevel
	}
	log.SetLevel(ll)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

func loadRules(path string) (*prefixmap.Table[string], error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules []rule
	if err := jsoniter.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	table := prefixmap.New[string]()
	for _, r := range rules {
		block, err := netblock.Parse(r.CIDR)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.CIDR, err)
		}
		if prev, had := table.Put(block, r.Value); had {
			log.WithField("cidr", block).Warnf("duplicate rule, dropping value %q", prev)
		}
	}
	return table, nil
}

// parseQuery reads a plain address, optionally "addr%scope" with a numeric
// scope id.
func parseQuery(arg string) ([]byte, uint32, error) {
	addr, err := netip.ParseAddr(arg)
	if err != nil {
		return nil, 0, fmt.Errorf("address %q: %w", arg, err)
	}
	var scope uint64
	if zone := addr.Zone(); zone != "" {
		scope, err = strconv.ParseUint(zone, 10, 32)
		if err != nil {
			return nil, 0, fmt.Errorf("address %q: numeric scope id required", arg)
		}
	}
	addr = addr.WithZone("").Unmap()
	return addr.AsSlice(), uint32(scope), nil
}

func run(args []string) error {
	table, err := loadRules(rulesFile)
	if err != nil {
		return err
	}
	log.WithField("rules", table.Size()).Debug("rules loaded")
	for _, arg := range args {
		addr, scope, err := parseQuery(arg)
		if err != nil {
			return err
		}
		if v, ok := table.Get(addr, scope); ok {
			fmt.Printf("%s -> %s\n", arg, v)
		} else {
			fmt.Printf("%s -> no match\n", arg)
		}
	}
	return nil
}

func main() {
	cobra.OnInitialize(initConfig)
	rootCmd.Flags().StringVar(&rulesFile, "rules", "rules.json", "path to the JSON rules file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

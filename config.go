package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	dbDriver       string
	dbURL          string
	flights        string
	participantTTL time.Duration
	port           int
	prefix         string
	profile        bool
	secretKey      string
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	// secret is derived from secretKey at startup, or randomized when
	// no key was configured.
	secret []byte
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}

	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}

	switch c.dbDriver {
	case "sqlite":
	case "postgres":
		if c.dbURL == "" {
			return errors.New("--db-url is required when --db-driver is postgres")
		}
	default:
		return fmt.Errorf("invalid database driver (must be sqlite or postgres): %q", c.dbDriver)
	}

	if c.participantTTL < time.Minute {
		return fmt.Errorf("invalid participant ttl (must be at least 1m): %s", c.participantTTL)
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}

	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WHISKEYCANON")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "whiskeycanon",
		Short:         "A self-hosted service for running synchronous blind whiskey-tasting sessions.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			return ServeAPI(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: WHISKEYCANON_BIND)")
	fs.StringVar(&cfg.dbDriver, "db-driver", "sqlite", "database driver, either sqlite or postgres (env: WHISKEYCANON_DB_DRIVER)")
	fs.StringVar(&cfg.dbURL, "db-url", "", "database connection string (env: WHISKEYCANON_DB_URL)")
	fs.StringVar(&cfg.flights, "flights", "", "directory of flight template yaml files (env: WHISKEYCANON_FLIGHTS)")
	fs.DurationVar(&cfg.participantTTL, "participant-ttl", 12*time.Hour, "participant token lifetime (env: WHISKEYCANON_PARTICIPANT_TTL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: WHISKEYCANON_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: WHISKEYCANON_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: WHISKEYCANON_PROFILE)")
	fs.StringVar(&cfg.secretKey, "secret", "", "key used to sign participant tokens, randomized at startup if unset (env: WHISKEYCANON_SECRET)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle session rooms are closed (env: WHISKEYCANON_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: WHISKEYCANON_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: WHISKEYCANON_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: WHISKEYCANON_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: WHISKEYCANON_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("whiskeycanon v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

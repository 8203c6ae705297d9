// Command svproxy is a minimal demonstration harness around the
// cryptoops and mining packages: it loads a proxy configuration, generates
// or loads a certificate authority, and wires a Router per configured
// upstream. It deliberately stops short of a production accept loop (dialing
// pools, retry/backoff, metrics export) since that belongs to a full
// deployment, not this core.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sv2proxy/svcore/internal/cryptoops"
	"github.com/sv2proxy/svcore/internal/mining"
)

var rootCmd = &cobra.Command{
	Use:   "svproxy",
	Short: "Stratum V2 translation proxy core demonstration harness",
	RunE:  run,
}

var (
	flagConfigPath    string
	flagGenAuthority  bool
	flagAuthorityFile string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfigPath, "config", "svproxy.yaml", "path to proxy YAML configuration")
	flags.BoolVar(&flagGenAuthority, "gen-authority", false, "generate a new certificate authority keypair and exit")
	flags.StringVar(&flagAuthorityFile, "authority-file", "authority.key", "path to read/write the authority's private key")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute root command")
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagGenAuthority {
		return generateAuthority(flagAuthorityFile)
	}

	cfg, err := LoadConfig(flagConfigPath)
	if err != nil {
		return err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	authority, err := loadOrGenerateAuthority(flagAuthorityFile)
	if err != nil {
		return fmt.Errorf("load authority: %w", err)
	}
	log.Info().Str("authority_pub", fmt.Sprintf("%x", authority.PublicKey())).Msg("certificate authority ready")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	routers := make(map[string]*mining.Router, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		chType, err := channelTypeFromString(u.ChannelType)
		if err != nil {
			return fmt.Errorf("upstream %s: %w", u.Name, err)
		}
		log.Info().
			Str("upstream", u.Name).
			Str("addr", u.Addr).
			Str("channel_type", chType.String()).
			Bool("work_selection", u.WorkSelection).
			Str("protocol", u.Protocol).
			Msg("configured upstream router")

		// A real deployment dials u.Addr, runs the Noise handshake with
		// authority, and wraps the resulting net.Conn in a
		// cryptoops.SecureConn before handing it to the router as this
		// upstream's Peer. That network loop lives outside this core.
		routers[u.Name] = mining.NewRouter(chType, u.WorkSelection, nil, nil)
	}

	<-ctx.Done()
	return nil
}

func channelTypeFromString(s string) (mining.ChannelType, error) {
	switch s {
	case "", "standard":
		return mining.Standard, nil
	case "extended":
		return mining.Extended, nil
	case "group":
		return mining.Group, nil
	case "group_and_extended":
		return mining.GroupAndExtended, nil
	default:
		return 0, fmt.Errorf("unknown channel type %q", s)
	}
}

func generateAuthority(path string) error {
	authority, err := cryptoops.GenerateAuthority()
	if err != nil {
		return fmt.Errorf("generate authority: %w", err)
	}
	if err := os.WriteFile(path, authority.PrivateKey(), 0o600); err != nil {
		return fmt.Errorf("write authority key: %w", err)
	}
	log.Info().Str("path", path).Str("pub", fmt.Sprintf("%x", authority.PublicKey())).Msg("generated authority")
	return nil
}

func loadOrGenerateAuthority(path string) (*cryptoops.Authority, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		authority, genErr := cryptoops.GenerateAuthority()
		if genErr != nil {
			return nil, genErr
		}
		if writeErr := os.WriteFile(path, authority.PrivateKey(), 0o600); writeErr != nil {
			return nil, writeErr
		}
		return authority, nil
	}
	if err != nil {
		return nil, err
	}
	return cryptoops.LoadAuthority(data)
}

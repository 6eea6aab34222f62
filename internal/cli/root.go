package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-school-session/internal/config"
	"github.com/jrsteele09/go-school-session/internal/logging"
	"github.com/jrsteele09/go-school-session/session"
	"github.com/jrsteele09/go-school-session/token"
)

// app is the state shared by every subcommand of one invocation
type app struct {
	configPath string
	apiBase    string
	storeKind  string

	cfg        config.Config
	store      token.Store
	closeStore func() error
	manager    *session.Manager
}

// storeOverride replaces the configured token store kind
type storeOverride struct {
	config.StoreConfig
	kind config.StoreKind
}

func (s storeOverride) GetTokenStore() config.StoreKind {
	return s.kind
}

// NewRootCommand builds the schoolctl command tree
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "schoolctl",
		Short: "Command line client for the school management API",
		Long: `schoolctl signs in to the school management API and keeps the session
alive: expired access tokens are refreshed transparently and renewed ahead
of expiry.

The session is stored between runs in the token store selected by
TOKEN_STORE (file, redis or memory).

Examples:
  schoolctl login --email teacher@school.test --password Password1
  schoolctl whoami
  schoolctl request GET /api/students
  schoolctl request POST /api/students --data '{"name":"Grace"}'
  schoolctl logout`,
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML config file; environment variables take precedence")
	flags.StringVar(&a.apiBase, "api-base", "", "API base URL (default API_BASE_URL)")
	flags.StringVar(&a.storeKind, "store", "", "token store: file, redis or memory (default TOKEN_STORE)")

	root.AddCommand(
		newLoginCommand(a),
		newLogoutCommand(a),
		newWhoamiCommand(a),
		newRequestCommand(a),
		newKeepaliveCommand(a),
		newAccountCommand(a),
	)
	return root
}

// Execute runs schoolctl with the process arguments
func Execute() error {
	return NewRootCommand().Execute()
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	logging.ConfigureWriter(cmd.ErrOrStderr(), cfg.GetLogLevel(), cfg.GetLogFormat())

	var storeCfg config.StoreConfig = cfg
	if a.storeKind != "" {
		storeCfg = storeOverride{StoreConfig: cfg, kind: config.StoreKind(a.storeKind)}
	}
	store, closeStore, err := session.OpenStore(cmd.Context(), storeCfg)
	if err != nil {
		return fmt.Errorf("open token store: %w", err)
	}
	a.store, a.closeStore = store, closeStore

	opts := []session.Option{session.WithConfig(cfg), session.WithLogger(log.Logger)}
	if a.apiBase != "" {
		opts = append(opts, session.WithBaseURL(a.apiBase))
	}
	a.manager = session.New(store, opts...)
	return nil
}

func (a *app) close() error {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.closeStore != nil {
		return a.closeStore()
	}
	return nil
}

// restore bootstraps the stored session and fails when there is none
func (a *app) restore(cmd *cobra.Command) error {
	if err := a.manager.Bootstrap(cmd.Context()); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !a.manager.IsAuthenticated() {
		return fmt.Errorf("%w: run 'schoolctl login' first", session.ErrNotAuthenticated)
	}
	return nil
}

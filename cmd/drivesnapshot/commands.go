package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/drive-snapshot/archive"
	"github.com/jrsteele09/drive-snapshot/drive"
	"github.com/jrsteele09/drive-snapshot/internal/config"
	snaperrors "github.com/jrsteele09/drive-snapshot/internal/errors"
	"github.com/jrsteele09/drive-snapshot/internal/logging"
	"github.com/jrsteele09/drive-snapshot/profile"
	"github.com/jrsteele09/drive-snapshot/session"
	"github.com/jrsteele09/drive-snapshot/token"
	"github.com/jrsteele09/drive-snapshot/token/credstore"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

type app struct {
	configFile string
	configDir  string

	cfg    config.Config
	logger zerolog.Logger
	orch   *session.Orchestrator
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "drivesnapshot",
		Short: "Back up and restore a configuration directory to cloud storage",
		Long: `drivesnapshot signs in with OAuth (authorization code + PKCE through a
loopback redirect), archives a configuration directory and keeps dated
snapshots of it in a remote folder.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configFile)
			if err != nil {
				return err
			}
			displayAppname(cfg.GetAppName())
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", config.DefaultFile(), "configuration file")
	rootCmd.PersistentFlags().StringVar(&a.configDir, "dir", "", "directory to back up and restore into (overrides backup.config_dir)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "login",
			Short: "Sign in through the browser",
			Args:  cobra.NoArgs,
			RunE:  a.withSession(a.login),
		},
		&cobra.Command{
			Use:   "logout",
			Short: "Forget the stored credential",
			Args:  cobra.NoArgs,
			RunE: a.withSession(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return a.orch.Logout()
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show who is signed in",
			Args:  cobra.NoArgs,
			RunE:  a.withSession(a.status),
		},
		&cobra.Command{
			Use:   "backup",
			Short: "Archive the configuration directory and upload it",
			Args:  cobra.NoArgs,
			RunE: a.withSession(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return <-a.orch.Backup(ctx)
			}),
		},
		&cobra.Command{
			Use:   "list",
			Short: "List uploaded backups",
			Args:  cobra.NoArgs,
			RunE:  a.withSession(a.list),
		},
		&cobra.Command{
			Use:   "restore <name-or-id>",
			Short: "Download a backup and extract it over the configuration directory",
			Args:  cobra.ExactArgs(1),
			RunE:  a.withSession(a.restore),
		},
	)
	return rootCmd
}

// setup loads configuration and wires the session for every subcommand.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if !cmd.HasParent() || cmd.Name() == "help" {
		return nil
	}

	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.GetLogLevel())

	creds := credstore.NewFileRepo(cfg.GetCredentialFile())
	deps := session.Deps{
		Tokens: token.NewManager(cfg, creds, token.WithLogger(a.logger)),
		Store: drive.NewClient(
			drive.WithBaseURL(cfg.GetDriveBaseURL()),
			drive.WithUploadURL(cfg.GetDriveUploadURL()),
			drive.WithRateLimit(cfg.GetRateLimit()),
			drive.WithTimeout(cfg.GetRequestTimeout()),
			drive.WithLogger(a.logger),
		),
		Archiver: archive.New(archive.WithLogger(a.logger)),
		Profiles: profile.NewFetcher(cfg.GetIssuerURL(), cfg.GetUserInfoURL(), profile.WithLogger(a.logger)),
	}

	configDir := cfg.GetConfigDir()
	if a.configDir != "" {
		configDir = a.configDir
	}
	host := session.Host{
		Browser:   systemBrowser{out: cmd.OutOrStdout(), logger: a.logger},
		Reporter:  consoleReporter{out: cmd.OutOrStdout()},
		ConfigDir: session.ConfigDir(configDir),
	}
	a.orch = session.New(cfg, deps, host, session.WithLogger(a.logger))
	return nil
}

type sessionFunc func(ctx context.Context, cmd *cobra.Command, args []string) error

// withSession runs fn with a context cancelled on SIGINT/SIGTERM and always
// shuts the session down afterwards.
func (a *app) withSession(fn sessionFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err := fn(ctx, cmd, args)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := a.orch.Shutdown(shutdownCtx); serr != nil {
			a.logger.Warn().Err(serr).Msg("session shutdown")
		}
		return err
	}
}

func (a *app) login(ctx context.Context, cmd *cobra.Command, args []string) error {
	result, err := a.orch.Login(ctx)
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		a.orch.CancelLogin()
		<-result
		return snaperrors.ErrLoginCancelled
	}
}

func (a *app) status(ctx context.Context, cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if err := a.orch.Resume(ctx); err != nil {
		if errors.Is(err, snaperrors.ErrLoginRequired) {
			fmt.Fprintln(out, "Not logged in")
			return nil
		}
		return err
	}

	status := a.orch.Status()
	if status.Username != "" {
		fmt.Fprintf(out, "Logged in as %s\n", status.Username)
	} else {
		fmt.Fprintln(out, "Logged in")
	}
	fmt.Fprintf(out, "Remote folder: %s\n", a.cfg.GetFolderName())
	return nil
}

func (a *app) list(ctx context.Context, cmd *cobra.Command, args []string) error {
	if err := <-a.orch.RefreshBackupList(ctx); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tDATE\tSIZE\tID")
	for _, ref := range a.orch.Backups() {
		tag, date, ok := archive.ParseArchiveName(ref.Name)
		dateStr := "-"
		if ok {
			dateStr = date.Format(time.DateOnly)
		} else {
			tag = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ref.Name, tag, dateStr, formatSize(ref.SizeBytes), ref.ID)
	}
	return w.Flush()
}

func (a *app) restore(ctx context.Context, cmd *cobra.Command, args []string) error {
	if err := <-a.orch.RefreshBackupList(ctx); err != nil {
		return err
	}
	ref, err := a.orch.FindBackup(args[0])
	if err != nil {
		return err
	}
	return <-a.orch.Restore(ctx, ref)
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

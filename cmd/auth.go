package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/teemow/gmailvault/internal/config"
	"github.com/teemow/gmailvault/internal/gmail"
	"github.com/teemow/gmailvault/internal/google"
	"github.com/teemow/gmailvault/internal/logging"
)

func newAuthCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize gmailvault to access your Gmail account",
		Long: `Run the interactive OAuth consent flow.

If a stored credential already works, its profile is shown and nothing else
happens (use --force to re-authorize). Otherwise a consent URL is printed;
open it, grant access and paste the authorization code back here. The
credential is saved to the token file and the connection is tested.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			r := &authRunner{
				cfg:    cfg,
				logger: logger,
				in:     cmd.InOrStdin(),
				out:    cmd.OutOrStdout(),
				force:  force,
			}
			return r.run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-authorize even if the stored credential works")
	return cmd
}

type authRunner struct {
	cfg    *config.Config
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	force  bool

	// gmailOptions are appended to the Gmail client options. Tests point
	// them at a fake API.
	gmailOptions []option.ClientOption
}

func (r *authRunner) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	oauthCfg, err := google.LoadClientConfig(r.cfg.CredentialsFile, google.DefaultScopes...)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	store := google.NewTokenStore(r.cfg.TokenFile)

	if !r.force && store.Exists() {
		session, err := google.Authorize(ctx, google.AuthOptions{
			CredentialsFile: r.cfg.CredentialsFile,
			TokenFile:       r.cfg.TokenFile,
			Logger:          r.logger,
		})
		if err == nil {
			if err = r.testConnection(ctx, session); err == nil {
				fmt.Fprintln(r.out, "Existing credentials are valid.")
				return nil
			}
		}
		r.logger.Info("stored credentials are not usable, starting authorization", logging.Err(err))
	}

	// The pasted-code flow never echoes state back, so it is only made
	// unpredictable here.
	flow := google.NewFlow(oauthCfg, store)
	fmt.Fprintf(r.out, "Open the following URL in your browser and grant access:\n\n%s\n\n", flow.AuthCodeURL(uuid.NewString()))
	fmt.Fprint(r.out, "Enter the authorization code: ")

	code, err := readCode(r.in)
	if err != nil {
		return err
	}

	tok, err := flow.Exchange(ctx, code)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Credentials saved to %s\n", store.Path())

	session := google.NewSession(ctx, oauthCfg, tok, r.logger)
	session.OnRefresh(google.PersistTo(store, r.logger))
	if err := r.testConnection(ctx, session); err != nil {
		return fmt.Errorf("authorization succeeded but the connection test failed: %w", err)
	}
	return nil
}

// testConnection fetches the mailbox profile and prints a short summary.
func (r *authRunner) testConnection(ctx context.Context, session *google.Session) error {
	client, err := gmail.NewClient(ctx, session.HTTPClient(ctx), gmail.Options{
		RequestsPerSecond: r.cfg.RequestsPerSecond,
		Logger:            r.logger,
		ClientOptions:     r.gmailOptions,
	})
	if err != nil {
		return err
	}
	profile, err := client.GetProfile(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("gmail connection verified", logging.UserHash(profile.EmailAddress))
	fmt.Fprintf(r.out, "Connected to %s\n", profile.EmailAddress)
	fmt.Fprintf(r.out, "  Messages: %d\n", profile.MessagesTotal)
	fmt.Fprintf(r.out, "  Threads:  %d\n", profile.ThreadsTotal)
	return nil
}

func readCode(in io.Reader) (string, error) {
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read authorization code: %w", err)
		}
		return "", errors.New("no authorization code entered")
	}
	code := strings.TrimSpace(scanner.Text())
	if code == "" {
		return "", errors.New("no authorization code entered")
	}
	return code, nil
}

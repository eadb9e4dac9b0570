package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/gmailvault/internal/config"
	"github.com/teemow/gmailvault/internal/download"
	"github.com/teemow/gmailvault/internal/server"
	"github.com/teemow/gmailvault/internal/tools/batch"
)

func newDownloadCmd() *cobra.Command {
	var (
		out         string
		subfolders  bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "download MESSAGE_ID:ATTACHMENT_ID:FILENAME...",
		Short: "Download attachments without going through an MCP client",
		Long: `Download one or more attachments. Each argument names one attachment as
messageId:attachmentId:filename. Every item is attempted; the batch summary
is printed as JSON and the command fails if any item failed.`,
		Example: `  gmailvault download 18c2f3:ANGjdJ9:invoice.pdf
  gmailvault download --out ~/receipts --subfolders 18c2f3:ANGjdJ9:a.pdf 18c300:ANGk01:b.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := parseDownloadArgs(args)
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := checkCredentialsSource(cfg); err != nil {
				return err
			}
			if !cmd.Flags().Changed("concurrency") {
				concurrency = cfg.BatchConcurrency
			}

			sc, err := server.NewServerContext(cmd.Context(), server.Options{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			defer func() { _ = sc.Shutdown() }()

			return runDownload(cmd.Context(), sc, reqs, download.BatchOptions{
				BasePath:         basePathOrDefault(out, cfg),
				CreateSubfolders: subfolders,
				Concurrency:      concurrency,
			}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Base directory for downloads (default: the configured download directory)")
	cmd.Flags().BoolVar(&subfolders, "subfolders", false, "Organize downloads into sender/year subfolders")
	cmd.Flags().IntVar(&concurrency, "concurrency", config.DefaultBatchConcurrency, "Maximum attachments downloaded in parallel")

	return cmd
}

func basePathOrDefault(out string, cfg *config.Config) string {
	if out == "" {
		return cfg.DownloadDir
	}
	return config.ExpandHome(out)
}

// parseDownloadArgs splits messageId:attachmentId:filename arguments. The
// filename is everything after the second colon.
func parseDownloadArgs(args []string) ([]download.Request, error) {
	reqs := make([]download.Request, 0, len(args))
	for i, arg := range args {
		parts := strings.SplitN(arg, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("argument %d (%q): expected messageId:attachmentId:filename", i+1, arg)
		}
		reqs = append(reqs, download.Request{
			MessageID:    parts[0],
			AttachmentID: parts[1],
			Filename:     parts[2],
		})
	}
	return reqs, nil
}

func runDownload(ctx context.Context, sc *server.ServerContext, reqs []download.Request, opts download.BatchOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	services, err := sc.Services(ctx)
	if err != nil {
		return err
	}

	summary := services.Orchestrator.RunBatch(ctx, reqs, opts)
	text, err := batch.FormatSummary(summary)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, text)

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", summary.Failed, summary.Total)
	}
	return nil
}

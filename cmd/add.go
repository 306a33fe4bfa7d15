package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/linkpreview/internal/apiclient"
	"github.com/JakeFAU/linkpreview/internal/form"
	"github.com/JakeFAU/linkpreview/internal/logging"
	"github.com/JakeFAU/linkpreview/internal/microlink"
)

func newAddCmd() *cobra.Command {
	var noPreview bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Open the terminal form to add a link",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAdd(cmd, !noPreview)
		},
	}
	cmd.Flags().BoolVar(&noPreview, "no-preview", false, "fill the fields without drawing the preview panel")
	return cmd
}

func runAdd(cmd *cobra.Command, showPreview bool) error {
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	// The form owns the terminal, so logs only ever go to a file.
	logger, err := logging.NewFile(cfg.Logging.Development, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	client, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.Client.APIURL,
		APIKey:  cfg.Client.APIKey,
		Timeout: cfg.ClientTimeout(),
	})
	if err != nil {
		return err
	}
	fetcher := microlink.New(microlink.Config{
		BaseURL: cfg.Microlink.BaseURL,
		APIKey:  cfg.Microlink.APIKey,
		Timeout: cfg.MicrolinkTimeout(),
	}, logger.Named("microlink"))

	model := form.New(cmd.Context(), fetcher, client, form.Options{
		ShowPreview: showPreview,
		Logger:      logger.Named("form"),
	})
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("run form: %w", err)
	}
	return nil
}

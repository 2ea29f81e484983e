package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hgvslab/variantdb/internal/clinvar"
	"github.com/hgvslab/variantdb/internal/config"
)

func newRefreshCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Download the ClinVar variant summary and rebuild the reference store",
		Long: `Download variant_summary.txt.gz from ClinVar and load it into the local
reference annotation store. The download is skipped when the file is already
present unless --force is given; the store swap is atomic, so an interrupted
refresh leaves the previous data usable.`,
		Example: `  variantdb refresh
  variantdb refresh --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-download even when the summary file is present")

	return cmd
}

func runRefresh(cmd *cobra.Command, force bool) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	summaryPath := filepath.Join(cfg.DataDir, "variant_summary.txt.gz")
	if force {
		os.Remove(summaryPath)
	}
	if err := downloadFile(cmd, cfg.ClinVarURL, summaryPath); err != nil {
		return fmt.Errorf("downloading variant summary: %w", err)
	}

	f, err := os.Open(summaryPath)
	if err != nil {
		return err
	}
	defer f.Close()

	store, err := clinvar.Open(cfg.ClinVarDBPath())
	if err != nil {
		return fmt.Errorf("opening ClinVar store: %w", err)
	}
	defer store.Close()
	store.SetLogger(logger)

	fmt.Fprintln(cmd.OutOrStdout(), "Loading reference annotations...")
	n, err := store.BulkLoad(f, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("loading variant summary: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Done: %d transcript annotations loaded\n", n)
	return nil
}

// downloadFile downloads a URL to the destination path, skipping the
// download when the file already exists. The response goes to a temp file
// first so a failed transfer never leaves a partial summary behind.
func downloadFile(cmd *cobra.Command, url, destPath string) error {
	out := cmd.OutOrStdout()

	if info, err := os.Stat(destPath); err == nil {
		fmt.Fprintf(out, "%s already exists (%s), skipping download\n",
			filepath.Base(destPath), formatSize(info.Size()))
		return nil
	}

	fmt.Fprintf(out, "Downloading %s...\n", filepath.Base(destPath))

	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %s", resp.Status)
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		fmt.Fprintf(out, "  upstream last modified: %s\n", lm)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	written, err := io.Copy(f, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download failed: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}

	fmt.Fprintf(out, "  done: %s\n", formatSize(written))
	return nil
}

func formatSize(bytes int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

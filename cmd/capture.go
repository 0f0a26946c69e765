/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/

// The capture command renders bookmarks into screenshots and PDFs without
// starting the server.
//
// Features:
//   - Capture a single bookmark by specifying its ID, whatever its state.
//   - Capture every bookmark that was never captured, optionally limited.
//   - Customize the Chrome/Chromium executable path.
//   - Choose between headless or headful Chrome execution.
//   - Configure a timeout for each capture.
//   - Wait for a CSS selector before capturing, helpful for JS-rendered pages.
//
// Example usage:
//
//	linkshelf capture --id=abc123 --timeout=30s --wait-selector=".content" --chrome-path="/path/to/chrome" --headful
//	linkshelf capture --limit=10
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/seckatie/linkshelf/internal/core"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture bookmarks into screenshots and PDFs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCapture(cmd)
	},
}

// runCapture is the main function for the capture command.
func runCapture(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	id, err := cmd.Flags().GetString("id")
	if err != nil {
		return fmt.Errorf("failed to read --id: %w", err)
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("failed to read --limit: %w", err)
	}

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	res, err := core.RunCapture(ctx, a.captureDeps(), core.RunOptions{ID: id, Limit: limit})
	fmt.Fprintf(cmd.OutOrStdout(), "attempted=%d succeeded=%d failed=%d\n", res.Attempted, res.Succeeded, res.Failed)
	return err
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().String("id", "", "Capture a specific bookmark id")
	captureCmd.Flags().Int("limit", 0, "Limit the number of bookmarks to capture (0 = all pending)")
	captureCmd.Flags().Duration("timeout", 35*time.Second, "Per-bookmark capture timeout")
	captureCmd.Flags().String("wait-selector", "", "Optional CSS selector to wait for (useful for JS-heavy pages)")
	captureCmd.Flags().String("chrome-path", "", "Path to Chrome/Chromium executable")
	captureCmd.Flags().Bool("headful", false, "Run Chrome with a visible window (not headless)")
}

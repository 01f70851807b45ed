package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-tracker/internal/hooks"
	"github.com/timvw/pane-tracker/internal/mux"
)

var (
	flagHookType   string
	flagHookPane   string
	flagHookStrict bool
)

const maxHookStdin = 64 * 1024

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Report an assistant hook to the daemon",
	Long: `Send one hook notification to the running daemon. Meant to be configured
as an assistant hook command, for example:

  pane-tracker hook --type Stop

The pane defaults to $TMUX_PANE. JSON on stdin, if any, is attached as the
event payload. Delivery failures are reported on stderr but do not fail the
command unless --strict is set, so a stopped daemon never breaks the
assistant.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		paneID := flagHookPane
		if paneID == "" {
			paneID = mux.CurrentPaneID()
		}

		h := hooks.Hook{
			PaneID:   paneID,
			HookType: flagHookType,
			Payload:  readHookPayload(os.Stdin),
		}
		if err := hooks.Send(cfg.HookSocketPath, h); err != nil {
			if flagHookStrict {
				return fmt.Errorf("send hook: %w", err)
			}
			fmt.Fprintf(os.Stderr, "pane-tracker: hook not delivered: %v\n", err)
		}
		return nil
	},
}

// readHookPayload returns stdin as a JSON payload, or nil when stdin is a
// terminal, empty or not valid JSON.
func readHookPayload(f *os.File) json.RawMessage {
	st, err := f.Stat()
	if err != nil || st.Mode()&os.ModeCharDevice != 0 {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(f, maxHookStdin))
	if err != nil {
		return nil
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return nil
	}
	return json.RawMessage(data)
}

func init() {
	hookCmd.Flags().StringVar(&flagHookType, "type", "", "hook type, e.g. Stop or Notification (required)")
	hookCmd.Flags().StringVar(&flagHookPane, "pane", "", "pane id (default: $TMUX_PANE)")
	hookCmd.Flags().BoolVar(&flagHookStrict, "strict", false, "fail when the hook cannot be delivered")
	_ = hookCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(hookCmd)
}

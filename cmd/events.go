package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-tracker/internal/model"
)

var (
	flagEventsSession string
	flagEventsLimit   int
	flagEventsJSON    bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event log, newest first",
	Long: `Show recorded events: sessions discovered and removed, state changes and
hooks. Events of removed sessions are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := initCLILogging(cfg); err != nil {
			return err
		}
		reg, closeFn, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		var evs []model.Event
		if flagEventsSession != "" {
			evs, err = reg.GetEvents(cmd.Context(), flagEventsSession, flagEventsLimit)
		} else {
			evs, err = reg.GetRecentEvents(cmd.Context(), flagEventsLimit)
		}
		if err != nil {
			return fmt.Errorf("read events: %w", err)
		}

		if flagEventsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(evs)
		}
		for _, e := range evs {
			fmt.Printf("%s\t%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.SessionID, e.Type)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&flagEventsSession, "session", "", "only events for this session id")
	eventsCmd.Flags().IntVar(&flagEventsLimit, "limit", 20, "maximum number of events")
	eventsCmd.Flags().BoolVar(&flagEventsJSON, "json", false, "output JSON")
	rootCmd.AddCommand(eventsCmd)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fastdata/cepbridge/internal/models"
)

var sinksCmd = &cobra.Command{
	Use:     "sinks",
	Aliases: []string{"sink"},
	Short:   "Event sink management",
	Long:    "Create, list, enable, disable and delete the HTTP endpoints that receive CEP output events",
}

var sinksListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List event sinks",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPrinter(cmd)
		if err != nil {
			return err
		}

		sinks, err := adminClient(cmd).ListSinks(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list sinks: %w", err)
		}

		if ok, err := p.encode(sinks); ok {
			return err
		}
		if len(sinks) == 0 {
			info(p.w, "No event sinks registered")
			return nil
		}

		t := newTable("URL", "Name", "Status", "Created", "ID")
		for _, s := range sinks {
			t.addRow(s.URL, s.Name, sinkStatus(s), s.CreatedAt.Format("2006-01-02 15:04:05"), s.ID)
		}
		t.render(p.w)
		return nil
	},
}

var sinksCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new event sink",
	Example: `  cepctl sinks create --name alerts --url http://alerts.local:8080/notify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPrinter(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		url, _ := cmd.Flags().GetString("url")

		sink, err := adminClient(cmd).CreateSink(cmd.Context(), name, url)
		if err != nil {
			return fmt.Errorf("failed to create sink: %w", err)
		}

		if ok, err := p.encode(sink); ok {
			return err
		}
		success(p.w, "Event sink created: %s", sink.URL)
		info(p.w, "ID: %s", sink.ID)
		return nil
	},
}

var sinksDeleteCmd = &cobra.Command{
	Use:   "delete [url]",
	Short: "Delete an event sink",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := adminClient(cmd).DeleteSink(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete sink: %w", err)
		}
		success(cmd.OutOrStdout(), "Event sink deleted: %s", args[0])
		return nil
	},
}

var sinksEnableCmd = &cobra.Command{
	Use:   "enable [url]",
	Short: "Resume delivery to an event sink",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSinkEnabled(cmd, args[0], true)
	},
}

var sinksDisableCmd = &cobra.Command{
	Use:   "disable [url]",
	Short: "Stop delivering new events to an event sink",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSinkEnabled(cmd, args[0], false)
	},
}

func setSinkEnabled(cmd *cobra.Command, url string, enabled bool) error {
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	c := adminClient(cmd)
	var sink *models.EventSink
	if enabled {
		sink, err = c.EnableSink(cmd.Context(), url)
	} else {
		sink, err = c.DisableSink(cmd.Context(), url)
	}
	if err != nil {
		return fmt.Errorf("failed to update sink: %w", err)
	}

	if ok, err := p.encode(sink); ok {
		return err
	}
	success(p.w, "Event sink %s: %s", sinkStatus(*sink), sink.URL)
	return nil
}

func sinkStatus(s models.EventSink) string {
	if s.Enabled {
		return "enabled"
	}
	return "disabled"
}

func init() {
	sinksCreateCmd.Flags().String("name", "", "display name of the sink")
	sinksCreateCmd.Flags().String("url", "", "endpoint receiving output events")
	sinksCreateCmd.MarkFlagRequired("url")

	sinksCmd.AddCommand(sinksListCmd)
	sinksCmd.AddCommand(sinksCreateCmd)
	sinksCmd.AddCommand(sinksDeleteCmd)
	sinksCmd.AddCommand(sinksEnableCmd)
	sinksCmd.AddCommand(sinksDisableCmd)
}

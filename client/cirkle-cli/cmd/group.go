package cmd

import (
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"
)

type resourceView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type groupView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Resources struct {
		Documents []resourceView `json:"documents"`
		Files     []resourceView `json:"files"`
	} `json:"resources"`
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Inspect and sync study groups",
}

var groupGetCmd = &cobra.Command{
	Use:   "get [group-id]",
	Short: "Show a group's cached resources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		var group groupView
		if err := client.do(cmd.Context(), "GET", "/api/v1/groups/"+url.PathEscape(args[0]), nil, &group); err != nil {
			return err
		}
		return printGroup(cmd.OutOrStdout(), &group)
	},
}

var groupSyncCmd = &cobra.Command{
	Use:   "sync [group-id]",
	Short: "Reconcile a group's resource names with Drive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		var resp struct {
			Synced bool       `json:"synced"`
			Group  *groupView `json:"group"`
		}
		if err := client.do(cmd.Context(), "POST", "/api/v1/groups/"+url.PathEscape(args[0])+"/sync", nil, &resp); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if resp.Synced {
			fmt.Fprintln(out, "Resource names updated.")
		} else {
			fmt.Fprintln(out, "Nothing to update.")
		}
		if resp.Group == nil {
			return nil
		}
		return printGroup(out, resp.Group)
	},
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.AddCommand(groupGetCmd)
	groupCmd.AddCommand(groupSyncCmd)
}

func printGroup(w io.Writer, group *groupView) error {
	fmt.Fprintf(w, "%s (%s)\n", group.Name, group.ID)
	sections := []struct {
		kind  string
		items []resourceView
	}{
		{"documents", group.Resources.Documents},
		{"files", group.Resources.Files},
	}
	for _, s := range sections {
		for _, r := range s.items {
			if _, err := fmt.Fprintf(w, "  %-9s %-24s %s\n", s.kind, r.ID, r.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	driveGroupID string
	driveKind    string
	driveFileID  string
	driveNewName string
)

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Rename or delete Drive files attached to a group",
}

var renameCmd = &cobra.Command{
	Use:   "rename",
	Short: "Rename a Drive file and update the group's cached name",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		var resp struct {
			FileID string `json:"file_id"`
			Name   string `json:"name"`
		}
		err = client.do(cmd.Context(), "POST", "/api/v1/drive/rename", map[string]string{
			"group_id": driveGroupID,
			"kind":     driveKind,
			"file_id":  driveFileID,
			"new_name": driveNewName,
		}, &resp)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", resp.FileID, resp.Name)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a Drive file and remove it from the group",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		err = client.do(cmd.Context(), "POST", "/api/v1/drive/delete", map[string]string{
			"group_id": driveGroupID,
			"kind":     driveKind,
			"file_id":  driveFileID,
		}, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", driveFileID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(driveCmd)
	driveCmd.AddCommand(renameCmd)
	driveCmd.AddCommand(deleteCmd)

	for _, c := range []*cobra.Command{renameCmd, deleteCmd} {
		c.Flags().StringVar(&driveGroupID, "group", "", "group the file belongs to")
		c.Flags().StringVar(&driveKind, "kind", "documents", "resource kind: documents or files")
		c.Flags().StringVar(&driveFileID, "id", "", "Drive file id")
		_ = c.MarkFlagRequired("id")
	}
	renameCmd.Flags().StringVar(&driveNewName, "name", "", "new file name")
	_ = renameCmd.MarkFlagRequired("name")
}

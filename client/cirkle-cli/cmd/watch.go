package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print sync notices pushed to this user in real time",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		c, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), client.wsURL("/ws/subscribe"), nil)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer c.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintln(cmd.ErrOrStderr(), "WebSocket connected. Waiting for notices...")
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return nil
				}
				return fmt.Errorf("read: %w", err)
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, message, "", "  "); err != nil {
				fmt.Fprintln(out, string(message))
				continue
			}
			fmt.Fprintln(out, pretty.String())
		}
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored Google Drive token",
}

var tokenRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the stored Google access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		var resp struct {
			Expiry string `json:"expiry"`
		}
		if err := client.do(cmd.Context(), "POST", "/api/v1/google/token/refresh", nil, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Access token refreshed, expires %s\n", resp.Expiry)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenRefreshCmd)
}

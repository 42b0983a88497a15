package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Instances register under this prefix with their address as the value.
const servicePrefix = "/cirkle/services/resource-sync/"

var (
	serverURL     string
	authToken     string
	etcdEndpoints []string
)

var rootCmd = &cobra.Command{
	Use:          "cirkle-cli",
	Short:        "A CLI client for the Cirkle resource sync service",
	Long:         `A command-line interface for syncing group resource names and managing Drive files through the resource sync service.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "resource sync service base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("CIRKLE_TOKEN"), "JWT used to authenticate (default $CIRKLE_TOKEN)")
	rootCmd.PersistentFlags().StringSliceVar(&etcdEndpoints, "etcd", nil, "discover the server through these etcd endpoints instead of --server")
}

// newClient resolves the server address and returns an API client.
func newClient(ctx context.Context) (*apiClient, error) {
	if authToken == "" {
		return nil, fmt.Errorf("no token: pass --token or set CIRKLE_TOKEN")
	}
	base := serverURL
	if len(etcdEndpoints) > 0 {
		addr, err := discover(ctx)
		if err != nil {
			return nil, err
		}
		base = addr
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return newAPIClient(base, authToken), nil
}

func discover(ctx context.Context) (string, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   etcdEndpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return "", fmt.Errorf("connect to etcd: %w", err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := cli.Get(ctx, servicePrefix, clientv3.WithPrefix(), clientv3.WithLimit(1))
	if err != nil {
		return "", fmt.Errorf("discover resource-sync: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return "", fmt.Errorf("no resource-sync instances registered")
	}
	return strings.TrimSpace(string(resp.Kvs[0].Value)), nil
}

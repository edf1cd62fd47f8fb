// agentctl is a small CLI client for the agent service REST API, mainly for
// local development and smoke testing.
package main

import (
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var (
	apiFlag string
	rootCmd = &cobra.Command{
		Use:   "agentctl",
		Short: "CLI client for the agent service REST API",
	}
)

func newClient() *resty.Client {
	return resty.New().SetBaseURL(apiFlag)
}

// printResponse writes the raw JSON body and surfaces non-2xx statuses as
// errors so shell pipelines fail loudly.
func printResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(os.Stdout, string(resp.Body()))
	if resp.IsError() {
		return fmt.Errorf("http %d", resp.StatusCode())
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:11545", "Agent service base URL")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taostats/internal/api"
)

func newAPICmd() *cobra.Command {
	cmd := &cobra.Command{Use: "api", Short: "Call the taostats REST API"}

	get := &cobra.Command{
		Use:   "get <path>",
		Short: "GET an API path and print the JSON response",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(func(cmd *cobra.Command, e *env, args []string) error {
			raw, _ := cmd.Flags().GetStringSlice("param")
			params, err := parseParams(raw)
			if err != nil {
				return err
			}
			var out json.RawMessage
			if err := e.client.API().Get(e.ctx, normalizePath(args[0]), params, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		}),
	}
	get.Flags().StringSlice("param", nil, "query parameters as key=value (repeatable)")

	cmd.AddCommand(get)
	return cmd
}

func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func parseParams(raw []string) (api.Params, error) {
	params := api.Params{}
	for _, item := range raw {
		key, value, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid param %q: want key=value", item)
		}
		params[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return params, nil
}

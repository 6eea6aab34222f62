package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-school-session/client"
)

func newRequestCommand(a *app) *cobra.Command {
	var (
		data    string
		query   []string
		headers []string
	)

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an authenticated request to the API",
		Long: `Send an authenticated request and print the JSON response.

An expired access token is refreshed and the request retried once.

Examples:
  schoolctl request GET /api/students --query class=4B
  schoolctl request POST /api/students --data '{"name":"Grace"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, path := strings.ToUpper(args[0]), args[1]

			var opts []client.RequestOption
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data is not valid JSON")
				}
				opts = append(opts, client.WithJSONBody(json.RawMessage(data)))
			}
			if len(query) > 0 {
				values := url.Values{}
				for _, q := range query {
					key, value, ok := strings.Cut(q, "=")
					if !ok {
						return fmt.Errorf("--query %q: want key=value", q)
					}
					values.Add(key, value)
				}
				opts = append(opts, client.WithQuery(values))
			}
			for _, h := range headers {
				key, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("--header %q: want Name: value", h)
				}
				opts = append(opts, client.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value)))
			}

			if err := a.restore(cmd); err != nil {
				return err
			}
			resp, err := a.manager.Client().Execute(cmd.Context(), method, path, opts...)
			if err != nil {
				return err
			}
			return printBody(cmd, resp.Body)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "query parameter key=value, repeatable")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header 'Name: value', repeatable")
	return cmd
}

func printBody(cmd *cobra.Command, body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		out.Reset()
		out.Write(body)
	}
	out.WriteByte('\n')
	_, err := cmd.OutOrStdout().Write(out.Bytes())
	return err
}

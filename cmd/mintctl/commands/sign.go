package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"credit-mint-engine/internal/service"

	"github.com/spf13/cobra"
)

func newSignCmd(s *settings) *cobra.Command {
	var (
		body      string
		bodyFile  string
		nonce     string
		timestamp int64
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print signed request headers for a body",
		Long: `Print the X-Mint-* headers for a request body, one per line.

The body is taken from --body, --body-file, or stdin when neither is set.

Examples:
  mintctl sign --secret s3cret --body '{"mintId":"report-reward-000000000001"}'
  cat body.json | mintctl sign --caller rewards-svc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.secret() == "" {
				return errors.New("signing secret is required (--secret or CME_SIGNING_SECRET)")
			}

			raw, err := readBody(cmd, body, bodyFile)
			if err != nil {
				return err
			}

			now := time.Now()
			if timestamp > 0 {
				now = time.UnixMilli(timestamp)
			}
			headers := service.SignRequest(s.secret(), s.caller(), nonce, raw, now)
			keys := make([]string, 0, len(headers))
			for k := range headers {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, headers[k])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&body, "body", "", "Request body")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "Read the request body from a file")
	cmd.Flags().StringVar(&nonce, "nonce", "", "Nonce to sign (random when empty)")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Unix milliseconds to sign (now when zero)")
	return cmd
}

func readBody(cmd *cobra.Command, body, bodyFile string) ([]byte, error) {
	switch {
	case body != "" && bodyFile != "":
		return nil, errors.New("use either --body or --body-file")
	case body != "":
		return []byte(body), nil
	case bodyFile != "":
		raw, err := os.ReadFile(bodyFile)
		if err != nil {
			return nil, fmt.Errorf("read body file: %w", err)
		}
		return raw, nil
	default:
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return raw, nil
	}
}

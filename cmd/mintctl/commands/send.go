package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"credit-mint-engine/internal/adapter/http/dto"
	"credit-mint-engine/internal/service"

	"github.com/spf13/cobra"
)

func newSupplyMintCmd(s *settings) *cobra.Command {
	var req dto.SupplyMintRequest

	cmd := &cobra.Command{
		Use:   "supply-mint",
		Short: "Send a signed supply-capped mint",
		Long: `Send a signed POST /api/v1/supply/mint. Re-sending the same --mint-id
replays the recorded event instead of issuing twice.

Example:
  mintctl supply-mint --mint-id report-reward-000000000042 \
    --recipient user-123 --amount 50 --reason REPORT_REWARD`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.MintID == "" || req.RecipientID == "" || req.Amount <= 0 || req.Reason == "" {
				return errors.New("--mint-id, --recipient, --amount and --reason are required")
			}
			return sendSigned(cmd, s, "/api/v1/supply/mint", req)
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.MintID, "mint-id", "", "Unique mint id (20-96 chars)")
	f.StringVar(&req.RecipientID, "recipient", "", "Recipient id")
	f.Int64Var(&req.Amount, "amount", 0, "Amount to issue")
	f.StringVar(&req.Reason, "reason", "", "REPORT_REWARD, BADGE_REWARD, ADMIN_ADJUSTMENT, MIGRATION or OTHER")
	f.StringVar(&req.Category, "category", "", "Optional category")
	f.StringVar(&req.ExternalRef, "external-ref", "", "Optional external reference")
	return cmd
}

func newDepositCmd(s *settings) *cobra.Command {
	var req dto.DepositRequest

	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Send a signed credit deposit",
		Long: `Send a signed POST /api/v1/wallets/deposit. The idempotency key makes
retries safe: a repeated key returns the original entry.

Example:
  mintctl deposit --owner user-1 --amount 500 --key promo-2026-03-user-1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.OwnerID == "" || req.Amount <= 0 || req.IdempotencyKey == "" {
				return errors.New("--owner, --amount and --key are required")
			}
			return sendSigned(cmd, s, "/api/v1/wallets/deposit", req)
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.OwnerID, "owner", "", "Wallet owner id")
	f.Int64Var(&req.Amount, "amount", 0, "Credits to deposit")
	f.StringVar(&req.IdempotencyKey, "key", "", "Idempotency key")
	f.StringVar(&req.Note, "note", "", "Optional note")
	return cmd
}

// sendSigned posts payload as JSON with signed headers and prints the response body.
func sendSigned(cmd *cobra.Command, s *settings, path string, payload interface{}) error {
	if s.secret() == "" {
		return errors.New("signing secret is required (--secret or CME_SIGNING_SECRET)")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL()+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range service.SignRequest(s.secret(), s.caller(), "", body, time.Now()) {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(bytes.TrimSpace(respBody)))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return nil
}

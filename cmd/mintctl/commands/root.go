package commands

import (
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// settings are shared by every subcommand. Flags win over CME_* environment variables.
type settings struct {
	v      *viper.Viper
	client *http.Client
}

func (s *settings) apiURL() string { return strings.TrimRight(s.v.GetString("api.url"), "/") }
func (s *settings) secret() string { return s.v.GetString("signing.secret") }
func (s *settings) caller() string { return s.v.GetString("signing.caller") }

// NewRootCmd builds the mintctl command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&http.Client{Timeout: 30 * time.Second})
}

func newRootCmd(client *http.Client) *cobra.Command {
	s := &settings{v: viper.New(), client: client}
	s.v.SetEnvPrefix("CME")
	s.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	s.v.AutomaticEnv()
	s.v.SetDefault("api.url", "http://localhost:8080")

	root := &cobra.Command{
		Use:   "mintctl",
		Short: "Operator tool for the credit mint engine",
		Long: `mintctl signs and sends service-to-service requests to the credit mint
engine and applies the database schema.

Settings may come from flags or the environment:
  --url     CME_API_URL
  --secret  CME_SIGNING_SECRET
  --caller  CME_SIGNING_CALLER`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.String("url", "", "Base URL of the API")
	pf.String("secret", "", "Shared signing secret")
	pf.String("caller", "", "Caller id sent in X-Mint-Caller")
	_ = s.v.BindPFlag("api.url", pf.Lookup("url"))
	_ = s.v.BindPFlag("signing.secret", pf.Lookup("secret"))
	_ = s.v.BindPFlag("signing.caller", pf.Lookup("caller"))

	root.AddCommand(
		newSignCmd(s),
		newSupplyMintCmd(s),
		newDepositCmd(s),
		newMigrateCmd(),
	)
	return root
}

package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/speedrun-hq/speedrun-intents/pkg/chains"
	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
	"github.com/speedrun-hq/speedrun-intents/pkg/recipients"
	"github.com/speedrun-hq/speedrun-intents/pkg/relayerclient"
)

var (
	recipientsRelayerURL string
	recipientsChain      string
	recipientsDecimals   int
)

var recipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "Manage the private recipient lists kept by the relayer",
}

var recipientsStoreCmd = &cobra.Command{
	Use:   "store <intent-id> <address:amount>...",
	Short: "Store or replace the recipient list of an intent",
	Long: `Store the recipients the winning solver pays on the destination chain.

Amounts are in base units unless --decimals is set.

Examples:
  speedrun recipients store 42 --chain base-sepolia 0xabc...:60 0xdef...:35
  speedrun recipients store 42 --decimals 6 0xabc...:1.5`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRecipientsStore,
}

var recipientsGetCmd = &cobra.Command{
	Use:   "get <intent-id>",
	Short: "Show the recipient list of an intent",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecipientsGet,
}

var recipientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the intents with a stored recipient list",
	Args:  cobra.NoArgs,
	RunE:  runRecipientsList,
}

var recipientsDeleteCmd = &cobra.Command{
	Use:   "delete <intent-id>",
	Short: "Delete the recipient list of an intent",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecipientsDelete,
}

func init() {
	rootCmd.AddCommand(recipientsCmd)
	recipientsCmd.AddCommand(recipientsStoreCmd, recipientsGetCmd, recipientsListCmd, recipientsDeleteCmd)

	defaultURL := os.Getenv("RELAYER_URL")
	if defaultURL == "" {
		defaultURL = config.DefaultRelayerURL
	}
	recipientsCmd.PersistentFlags().StringVar(&recipientsRelayerURL, "relayer", defaultURL, "Relayer URL")
	recipientsStoreCmd.Flags().StringVar(&recipientsChain, "chain", "base-sepolia", "Destination network name or chain id")
	recipientsStoreCmd.Flags().IntVar(&recipientsDecimals, "decimals", 0, "Token decimals of the amounts")
}

func relayerClient(cmd *cobra.Command) *relayerclient.Client {
	level := logger.ErrorLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = logger.DebugLevel
	}
	return relayerclient.New(recipientsRelayerURL, logger.NewStdLogger(true, level))
}

// parseRecipientPairs parses address:amount pairs
func parseRecipientPairs(pairs []string, decimals int) ([]common.Address, []*big.Int, error) {
	addrs := make([]common.Address, 0, len(pairs))
	amounts := make([]*big.Int, 0, len(pairs))
	for _, pair := range pairs {
		i := strings.LastIndex(pair, ":")
		if i < 0 {
			return nil, nil, fmt.Errorf("recipient %q is not address:amount", pair)
		}
		addr, err := recipients.ParseAddress(pair[:i])
		if err != nil {
			return nil, nil, err
		}
		amount, err := chains.ParseUnits(pair[i+1:], decimals)
		if err != nil {
			return nil, nil, err
		}
		if amount.Sign() <= 0 {
			return nil, nil, fmt.Errorf("amount of %s must be positive", addr.Hex())
		}
		addrs = append(addrs, addr)
		amounts = append(amounts, amount)
	}
	return addrs, amounts, nil
}

func runRecipientsStore(cmd *cobra.Command, args []string) error {
	id, err := models.ParseIntentID(args[0])
	if err != nil {
		return err
	}
	chainID, err := chains.ChainIDByName(recipientsChain)
	if err != nil {
		return err
	}
	addrs, amounts, err := parseRecipientPairs(args[1:], recipientsDecimals)
	if err != nil {
		return err
	}
	manifest := &models.RecipientManifest{
		IntentID:   id.String(),
		ChainID:    chainID,
		Recipients: addrs,
		Amounts:    amounts,
	}
	if err := recipients.Validate(manifest); err != nil {
		return err
	}
	if err := relayerClient(cmd).StoreRecipients(context.Background(), manifest); err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(map[string]interface{}{"success": true, "intentId": id.String(), "count": len(addrs)})
	}
	printSuccess("Stored %d recipients for intent %s (total %s)", len(addrs), id, models.SumAmounts(amounts))
	return nil
}

func runRecipientsGet(cmd *cobra.Command, args []string) error {
	id, err := models.ParseIntentID(args[0])
	if err != nil {
		return err
	}
	m, err := relayerClient(cmd).GetRecipients(context.Background(), id.String())
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(recipients.ToResponse(m))
	}
	fmt.Println()
	color.New(color.Bold).Printf("Intent %s on %s\n", m.IntentID, chains.GetChainName(m.ChainID))
	for i, r := range m.Recipients {
		fmt.Printf("  %s  %s\n", r.Hex(), m.Amounts[i])
	}
	fmt.Printf("  total %s\n\n", models.SumAmounts(m.Amounts))
	return nil
}

func runRecipientsList(cmd *cobra.Command, _ []string) error {
	ids, err := relayerClient(cmd).ListStoredIntents(context.Background())
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(map[string]interface{}{"intentIds": ids, "count": len(ids)})
	}
	if len(ids) == 0 {
		fmt.Println("No stored recipient lists")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runRecipientsDelete(cmd *cobra.Command, args []string) error {
	id, err := models.ParseIntentID(args[0])
	if err != nil {
		return err
	}
	if err := relayerClient(cmd).DeleteRecipients(context.Background(), id.String()); err != nil {
		return err
	}
	printSuccess("Deleted the recipients of intent %s", id)
	return nil
}

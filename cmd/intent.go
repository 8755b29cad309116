package cmd

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/speedrun-hq/speedrun-intents/pkg/chainclient"
	"github.com/speedrun-hq/speedrun-intents/pkg/chains"
	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
	"github.com/speedrun-hq/speedrun-intents/pkg/recipients"
	"github.com/speedrun-hq/speedrun-intents/pkg/relayerclient"
)

var (
	intentFrom       string
	intentTo         string
	sourceToken      string
	destinationToken string
	sourceAmount     string
	expectedAmount   string
	rewardAmount     string
	auctionDuration  time.Duration
	intentRecipients []string
	intentRelayerURL string
)

var intentCmd = &cobra.Command{
	Use:   "intent",
	Short: "Create, inspect and cancel intents",
}

var intentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Lock tokens in a new intent and open its auction",
	Long: `Approve the intent contract and create an intent on the origin chain.

Amounts are decimal token amounts, converted with the token's decimals.
Recipients given as address:amount pairs are stored in the relayer once the
intent exists, so the winning solver pays them instead of a fresh address.

Examples:
  speedrun intent create --from horizen-testnet --to base-sepolia \
    --source-token 0x... --destination-token 0x... \
    --amount 100 --expected 95 --reward 5 \
    --recipient 0xabc...:60 --recipient 0xdef...:35`,
	Args: cobra.NoArgs,
	RunE: runIntentCreate,
}

var intentStatusCmd = &cobra.Command{
	Use:   "status <intent-id>",
	Short: "Show the state and auction of an intent",
	Args:  cobra.ExactArgs(1),
	RunE:  runIntentStatus,
}

var intentCancelCmd = &cobra.Command{
	Use:   "cancel <intent-id>",
	Short: "Cancel an intent whose auction ended without a deposit",
	Args:  cobra.ExactArgs(1),
	RunE:  runIntentCancel,
}

func init() {
	rootCmd.AddCommand(intentCmd)
	intentCmd.AddCommand(intentCreateCmd, intentStatusCmd, intentCancelCmd)

	intentCmd.PersistentFlags().StringVar(&intentFrom, "from", "horizen-testnet", "Origin network name or chain id")

	intentCreateCmd.Flags().StringVar(&intentTo, "to", "base-sepolia", "Destination network name or chain id")
	intentCreateCmd.Flags().StringVar(&sourceToken, "source-token", "", "Token locked on the origin chain (required)")
	intentCreateCmd.Flags().StringVar(&destinationToken, "destination-token", "", "Token delivered on the destination chain (required)")
	intentCreateCmd.Flags().StringVar(&sourceAmount, "amount", "", "Source amount (required)")
	intentCreateCmd.Flags().StringVar(&expectedAmount, "expected", "", "Expected destination amount (required)")
	intentCreateCmd.Flags().StringVar(&rewardAmount, "reward", "0", "Solver reward")
	intentCreateCmd.Flags().DurationVar(&auctionDuration, "auction", time.Minute, "Auction duration")
	intentCreateCmd.Flags().StringArrayVar(&intentRecipients, "recipient", nil, "Private recipient as address:amount (repeatable)")
	intentCreateCmd.Flags().StringVar(&intentRelayerURL, "relayer", config.DefaultRelayerURL, "Relayer URL for storing recipients")
	for _, name := range []string{"source-token", "destination-token", "amount", "expected"} {
		_ = intentCreateCmd.MarkFlagRequired(name)
	}
}

// originSession loads the configuration and connects to the origin chain only
func originSession(ctx context.Context, cmd *cobra.Command) (*chainSet, *chainclient.Client, logger.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	origin, err := chains.ChainIDByName(intentFrom)
	if err != nil {
		return nil, nil, nil, err
	}
	log := newLogger(cmd, cfg.LoggerConfig)
	set, err := dialChains(ctx, cfg, []int{origin}, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return set, set.clients[origin], log, nil
}

func runIntentCreate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	destination, err := chains.ChainIDByName(intentTo)
	if err != nil {
		return err
	}
	srcToken, err := recipients.ParseAddress(sourceToken)
	if err != nil {
		return fmt.Errorf("invalid source token: %w", err)
	}
	dstToken, err := recipients.ParseAddress(destinationToken)
	if err != nil {
		return fmt.Errorf("invalid destination token: %w", err)
	}

	set, client, log, err := originSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer set.Close()

	decimals, err := client.TokenDecimals(ctx, srcToken)
	if err != nil {
		return fmt.Errorf("failed to read token decimals: %w", err)
	}
	params := ledger.CreateIntentParams{
		SourceToken:      srcToken,
		DestinationToken: dstToken,
		AuctionDuration:  auctionDuration,
	}
	if params.SourceAmount, err = chains.ParseUnits(sourceAmount, int(decimals)); err != nil {
		return err
	}
	if params.ExpectedDestinationAmount, err = chains.ParseUnits(expectedAmount, int(decimals)); err != nil {
		return err
	}
	if params.Reward, err = chains.ParseUnits(rewardAmount, int(decimals)); err != nil {
		return err
	}

	var manifest *models.RecipientManifest
	if len(intentRecipients) > 0 {
		addrs, amounts, err := parseRecipientPairs(intentRecipients, int(decimals))
		if err != nil {
			return err
		}
		manifest = &models.RecipientManifest{ChainID: destination, Recipients: addrs, Amounts: amounts}
	}

	quiet := jsonOutput(cmd)
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	step := func(suffix string) {
		if !quiet {
			s.Suffix = suffix
			s.Start()
		}
	}

	escrow := new(big.Int).Add(params.SourceAmount, params.Reward)
	step(" Approving intent contract...")
	_, err = client.ApproveToken(ctx, srcToken, client.ContractAddress(), escrow)
	s.Stop()
	if err != nil {
		return fmt.Errorf("approval failed: %w", err)
	}

	step(" Creating intent...")
	id, receipt, err := client.CreateIntent(ctx, params)
	s.Stop()
	if err != nil {
		return fmt.Errorf("intent creation failed: %w", err)
	}

	if manifest != nil {
		manifest.IntentID = id.String()
		step(" Storing recipients...")
		err = relayerclient.New(intentRelayerURL, log).StoreRecipients(ctx, manifest)
		s.Stop()
		if err != nil {
			color.Yellow("\nIntent %s created but its recipients could not be stored: %v", id, err)
			color.Yellow("Retry with: speedrun recipients store %s --chain %d ...\n", id, destination)
		}
	}

	if quiet {
		return printJSON(map[string]interface{}{
			"intentId":           id.String(),
			"originChainId":      client.ChainID(),
			"destinationChainId": destination,
			"transactionHash":    receipt.TxHash.Hex(),
			"blockNumber":        receipt.BlockNumber,
		})
	}
	printSuccess("Intent %s created on %s (tx %s)", id, chains.GetChainName(client.ChainID()), receipt.TxHash.Hex())
	fmt.Println("Track it with:")
	color.Cyan("  speedrun intent status %s --from %d\n", id, client.ChainID())
	return nil
}

func runIntentStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	id, err := models.ParseIntentID(args[0])
	if err != nil {
		return err
	}
	set, client, _, err := originSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer set.Close()

	intent, err := client.GetIntent(ctx, id)
	if err != nil {
		return err
	}
	bid, err := client.GetHighestBid(ctx, id)
	if err != nil {
		return err
	}

	if jsonOutput(cmd) {
		return printJSON(map[string]interface{}{"intent": intent, "highestBid": bid})
	}
	displayIntent(intent, bid, time.Now())
	return nil
}

func displayIntent(intent *models.Intent, bid *models.Bid, now time.Time) {
	bold := color.New(color.Bold)
	fmt.Println()
	bold.Printf("Intent %s on %s\n", intent.ID, chains.GetChainName(intent.OriginChainID))
	fmt.Printf("  State:          %s\n", intent.State)
	fmt.Printf("  User:           %s\n", intent.User.Hex())
	fmt.Printf("  Source:         %s of %s\n", intent.SourceAmount, intent.SourceToken.Hex())
	fmt.Printf("  Expected:       %s of %s\n", intent.ExpectedDestinationAmount, intent.DestinationToken.Hex())
	fmt.Printf("  Reward:         %s\n", intent.Reward)
	if intent.AuctionOpen(now) {
		fmt.Printf("  Auction ends:   %s (in %s)\n", intent.AuctionEndTime.Format(time.RFC3339), intent.AuctionEndTime.Sub(now).Round(time.Second))
	} else {
		fmt.Printf("  Auction ended:  %s\n", intent.AuctionEndTime.Format(time.RFC3339))
	}
	if bid.HasBid() {
		fmt.Printf("  Highest bid:    %s by %s\n", bid.Amount, bid.Solver.Hex())
	} else {
		fmt.Println("  Highest bid:    none")
	}
	if intent.WinningSolver != (common.Address{}) {
		fmt.Printf("  Winner:         %s (bid %s)\n", intent.WinningSolver.Hex(), intent.WinningBid)
	}
	fmt.Println()
}

func runIntentCancel(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	id, err := models.ParseIntentID(args[0])
	if err != nil {
		return err
	}
	set, client, _, err := originSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer set.Close()

	receipt, err := client.CancelIntent(ctx, id)
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(receipt)
	}
	printSuccess("Intent %s cancelled (tx %s)", id, receipt.TxHash.Hex())
	return nil
}

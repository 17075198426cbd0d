package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/cookbot/internal/projection"
	"github.com/ChuLiYu/cookbot/internal/server"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

const remoteTimeout = 10 * time.Second

// remoteFlags are shared by the commands that talk to a running kitchen.
type remoteFlags struct {
	addr string
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.addr, "addr", "", "kitchen gRPC address (default: grpc.addr from config)")
}

// withClient dials the kitchen and runs fn with a bounded context.
func (f *remoteFlags) withClient(cmd *cobra.Command, fn func(context.Context, *server.Client) error) error {
	addr := f.addr
	if addr == "" {
		cfg, err := currentConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		addr = cfg.GRPC.Addr
	}
	client, conn, err := server.Dial(dialAddr(addr))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
	defer cancel()
	return fn(ctx, client)
}

// dialAddr turns a listen address such as ":50051" into one a client can dial.
func dialAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func buildBotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Add or withdraw bots on a running kitchen",
	}

	var addFlags remoteFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return addFlags.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				bot, err := c.AddBot(ctx)
				if err != nil {
					return err
				}
				printBot(cmd.OutOrStdout(), bot)
				return nil
			})
		},
	}
	addFlags.register(add)

	var withdrawFlags remoteFlags
	withdraw := &cobra.Command{
		Use:     "withdraw <bot-id>",
		Aliases: []string{"remove"},
		Short:   "Withdraw a bot; its order goes back to pending",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withdrawFlags.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				id := types.BotID(args[0])
				if _, err := c.WithdrawBot(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s withdrawn\n", id)
				return nil
			})
		},
	}
	withdrawFlags.register(withdraw)

	cmd.AddCommand(add, withdraw)
	return cmd
}

func buildOrderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Submit orders to a running kitchen",
	}

	var flags remoteFlags
	var vip bool
	var orderType string
	add := &cobra.Command{
		Use:   "add",
		Short: "Submit an order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if vip {
				orderType = string(types.OrderVIP)
			}
			t, err := types.ParseOrderType(orderType)
			if err != nil {
				return err
			}
			return flags.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				order, err := c.AddOrder(ctx, t)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s\n", order.ID, order.Type, order.Status)
				return nil
			})
		},
	}
	flags.register(add)
	add.Flags().BoolVar(&vip, "vip", false, "submit a vip order")
	add.Flags().StringVarP(&orderType, "type", "t", string(types.OrderNormal), "order type: normal | vip")

	cmd.AddCommand(add)
	return cmd
}

func buildStatusCommand() *cobra.Command {
	var flags remoteFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show kitchen status and board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				board, err := c.Board(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(struct {
						Status any         `json:"status"`
						Board  types.Board `json:"board"`
					}{st, board})
				}
				fmt.Fprintf(out, "instance %s  uptime %s  cook %ds  journal seq %d\n",
					st.InstanceID, st.Uptime, st.CookSeconds, st.JournalSeq)
				fmt.Fprint(out, projection.Render(board))
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print status and board as JSON")
	return cmd
}

func printBot(w io.Writer, b types.Bot) {
	fmt.Fprintf(w, "%s %s", b.ID, b.Status)
	if b.HandlingOrder != "" {
		fmt.Fprintf(w, " %s", b.HandlingOrder)
	}
	fmt.Fprintln(w)
}

// intentctl inspects wallet calldata from the command line: it decodes a
// possibly-batched call into its operations and lists the token approvals
// hidden inside.
package main

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/multisigkit/intent-engine/approval"
	"github.com/multisigkit/intent-engine/decode"
	"github.com/multisigkit/intent-engine/internal/abis"
	"github.com/multisigkit/intent-engine/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "intentctl",
		Short:        "Inspect multisignature wallet calldata",
		SilenceUsage: true,
	}
	cmd.AddCommand(newDecodeCmd(), newApprovalsCmd())

	return cmd
}

// parseCall builds the raw call from the shared flags and the calldata
// argument.
func parseCall(cmd *cobra.Command, calldata string) (decode.Call, error) {
	payload, err := hexutil.Decode(calldata)
	if err != nil {
		return decode.Call{}, fmt.Errorf("invalid calldata: %w", err)
	}

	target, err := cmd.Flags().GetString("target")
	if err != nil {
		return decode.Call{}, err
	}
	if target != "" && !common.IsHexAddress(target) {
		return decode.Call{}, fmt.Errorf("invalid target address %q", target)
	}
	valueStr, err := cmd.Flags().GetString("value")
	if err != nil {
		return decode.Call{}, err
	}
	value := new(big.Int)
	if valueStr != "" {
		if _, ok := value.SetString(valueStr, 10); !ok {
			return decode.Call{}, fmt.Errorf("invalid value %q", valueStr)
		}
	}
	delegate, err := cmd.Flags().GetBool("delegate")
	if err != nil {
		return decode.Call{}, err
	}
	kind := decode.CallKindCall
	if delegate {
		kind = decode.CallKindDelegateCall
	}

	return decode.Call{
		Target:  common.HexToAddress(target),
		Value:   value,
		Payload: payload,
		Kind:    kind,
	}, nil
}

func addCallFlags(fs *pflag.FlagSet) {
	fs.String("target", "", "call target address")
	fs.String("value", "0", "call value in wei")
	fs.Bool("delegate", false, "treat the call as a delegate call")
}

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <calldata>",
		Short: "Decode calldata into its operations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			call, err := parseCall(cmd, args[0])
			if err != nil {
				return err
			}
			ops, err := decode.Decode(call)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"#", "Kind", "Target", "Value", "Method", "Payload"})
			table.SetAutoWrapText(false)
			for i, op := range ops {
				table.Append([]string{
					fmt.Sprintf("%d", i),
					op.Kind.String(),
					op.Target.Hex(),
					opValue(op),
					methodName(op),
					truncate(hexutil.Encode(op.Payload), 42),
				})
			}
			table.Render()

			return nil
		},
	}
	addCallFlags(cmd.Flags())

	return cmd
}

func newApprovalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals <calldata>",
		Short: "List the token approvals granted by calldata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			call, err := parseCall(cmd, args[0])
			if err != nil {
				return err
			}
			ops, err := decode.Decode(call)
			if err != nil {
				return err
			}
			grants := approval.NewScanner(logger.Nop()).Scan(ops)
			if len(grants) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no approvals found")
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Op", "Method", "Token", "Spender", "Amount"})
			table.SetAutoWrapText(false)
			for _, g := range grants {
				amount := g.Amount.String()
				if g.Unlimited {
					amount = "unlimited"
				}
				table.Append([]string{
					fmt.Sprintf("%d", g.SourceIndex),
					string(g.Method),
					g.Token.Hex(),
					g.Spender.Hex(),
					amount,
				})
			}
			table.Render()

			return nil
		},
	}
	addCallFlags(cmd.Flags())

	return cmd
}

func opValue(op decode.Operation) string {
	if op.Value == nil {
		return "0"
	}

	return op.Value.String()
}

// methodName resolves the payload selector against the ABIs the engine knows.
func methodName(op decode.Operation) string {
	if len(op.Payload) == 0 {
		return "(transfer)"
	}
	if len(op.Payload) < 4 {
		return "(malformed)"
	}
	if m, err := abis.ERC20.MethodById(op.Payload[:4]); err == nil {
		return m.Sig
	}
	if m, err := abis.MultiSend.MethodById(op.Payload[:4]); err == nil {
		return m.Sig
	}
	if m, err := abis.Safe.MethodById(op.Payload[:4]); err == nil {
		return m.Sig
	}
	if m, err := abis.Roles.MethodById(op.Payload[:4]); err == nil {
		return m.Sig
	}

	return hexutil.Encode(op.Payload[:4])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "…"
}

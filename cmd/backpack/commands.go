package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"backpack/internal/journal"
	"backpack/internal/ledger/models"
	id "backpack/pkg/domain"
	dErrors "backpack/pkg/domain-errors"
)

func parseBackpackArg(raw string) (id.BackpackID, error) {
	backpackID, err := id.ParseBackpackID(raw)
	if err != nil {
		return 0, fmt.Errorf("backpack id %q: %w", raw, err)
	}
	return backpackID, nil
}

func issueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "issue <owner>",
		Short: "Issue a new backpack to owner (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				caller, err := opts.caller(a)
				if err != nil {
					return err
				}
				owner, err := id.ParsePrincipal(args[0])
				if err != nil {
					return err
				}
				backpackID, err := a.identity.Issue(ctx, caller, owner)
				if err != nil {
					return err
				}
				return opts.emit(map[string]any{"backpack_id": backpackID, "owner": owner}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "issued backpack %s to %s\n", backpackID, owner)
					return err
				})
			})
		},
	}
}

func transferCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <backpack> <to>",
		Short: "Transfer a backpack to a new owner (current owner only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				caller, err := opts.caller(a)
				if err != nil {
					return err
				}
				backpackID, err := parseBackpackArg(args[0])
				if err != nil {
					return err
				}
				to, err := id.ParsePrincipal(args[1])
				if err != nil {
					return err
				}
				if err := a.identity.Transfer(ctx, caller, backpackID, to); err != nil {
					return err
				}
				return opts.emit(map[string]any{"backpack_id": backpackID, "owner": to}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "backpack %s now owned by %s\n", backpackID, to)
					return err
				})
			})
		},
	}
}

func agentCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage recording agents",
	}

	var revoke bool
	set := &cobra.Command{
		Use:   "set <principal>",
		Short: "Grant (or with --revoke, withdraw) recording rights (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				caller, err := opts.caller(a)
				if err != nil {
					return err
				}
				principal, err := id.ParsePrincipal(args[0])
				if err != nil {
					return err
				}
				if err := a.access.SetAgent(ctx, caller, principal, !revoke); err != nil {
					return err
				}
				return opts.emit(map[string]any{"principal": principal, "allowed": !revoke}, func(w io.Writer) error {
					verb := "granted"
					if revoke {
						verb = "revoked"
					}
					_, err := fmt.Fprintf(w, "%s agent %s\n", verb, principal)
					return err
				})
			})
		},
	}
	set.Flags().BoolVar(&revoke, "revoke", false, "Withdraw instead of grant")

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				agents, err := a.access.ListAgents(ctx)
				if err != nil {
					return err
				}
				if agents == nil {
					agents = []id.Principal{}
				}
				return opts.emit(agents, func(w io.Writer) error {
					for _, agent := range agents {
						if _, err := fmt.Fprintln(w, agent); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}

	cmd.AddCommand(set, list)
	return cmd
}

func imageCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Show or change the base image shared by every document",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the current base image",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.run(cmd, func(ctx context.Context, a *app) error {
					image, err := a.images.Image(ctx)
					if err != nil {
						return err
					}
					return opts.emit(map[string]string{"image": image}, func(w io.Writer) error {
						_, err := fmt.Fprintln(w, image)
						return err
					})
				})
			},
		},
		&cobra.Command{
			Use:   "set <uri>",
			Short: "Replace the base image (admin only)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.run(cmd, func(ctx context.Context, a *app) error {
					caller, err := opts.caller(a)
					if err != nil {
						return err
					}
					if err := a.images.SetImage(ctx, caller, args[0]); err != nil {
						return err
					}
					return opts.emit(map[string]string{"image": args[0]}, func(w io.Writer) error {
						_, err := fmt.Fprintf(w, "image set to %s\n", args[0])
						return err
					})
				})
			},
		},
	)
	return cmd
}

func recordCmd(opts *rootOptions) *cobra.Command {
	var purchase models.NewPurchase
	cmd := &cobra.Command{
		Use:   "record <backpack>",
		Short: "Append a purchase (owner or registered agent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				caller, err := opts.caller(a)
				if err != nil {
					return err
				}
				backpackID, err := parseBackpackArg(args[0])
				if err != nil {
					return err
				}
				receipt, err := a.ledger.RecordPurchase(ctx, caller, backpackID, purchase)
				if err != nil {
					return err
				}
				return opts.emit(receipt, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "recorded item %d on backpack %s (%d items)\n",
						receipt.Index, receipt.BackpackID, receipt.Count)
					return err
				})
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&purchase.Product, "product", "", "Product name")
	flags.StringVar(&purchase.Category, "category", "", "Product category")
	flags.StringVar(&purchase.TerpeneTag, "tag", "", "Terpene tag the purchase scores under")
	flags.Uint64Var(&purchase.Amount, "amount", 0, "Purchase amount; zero still counts as one")
	return cmd
}

func countCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count <backpack>",
		Short: "Print the number of recorded items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				backpackID, err := parseBackpackArg(args[0])
				if err != nil {
					return err
				}
				count, err := a.ledger.Count(ctx, backpackID)
				if err != nil {
					return err
				}
				return opts.emit(map[string]any{"backpack_id": backpackID, "count": count}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, count)
					return err
				})
			})
		},
	}
}

func itemCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "item <backpack> <index>",
		Short: "Print the item at a 0-based position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				backpackID, err := parseBackpackArg(args[0])
				if err != nil {
					return err
				}
				index, err := strconv.Atoi(args[1])
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeInvalidInput, "index must be an integer")
				}
				item, err := a.ledger.ItemAt(ctx, backpackID, index)
				if err != nil {
					return err
				}
				return opts.emit(item, func(w io.Writer) error {
					writeItem(w, index, item)
					return nil
				})
			})
		},
	}
}

func itemsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "items <backpack>",
		Short: "List every recorded item in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				backpackID, err := parseBackpackArg(args[0])
				if err != nil {
					return err
				}
				items, err := a.ledger.Items(ctx, backpackID)
				if err != nil {
					return err
				}
				if items == nil {
					items = []models.PurchaseItem{}
				}
				return opts.emit(items, func(w io.Writer) error {
					return writeItems(w, items)
				})
			})
		},
	}
}

func topCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "top <backpack>",
		Short: "Print the dominant category and its score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				backpackID, err := parseBackpackArg(args[0])
				if err != nil {
					return err
				}
				top, err := a.ledger.TopCategory(ctx, backpackID)
				if err != nil {
					return err
				}
				return opts.emit(top, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s\t%d\n", top.Label, top.Score)
					return err
				})
			})
		},
	}
}

func scoresCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scores <backpack>",
		Short: "List category scores in first-seen order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				backpackID, err := parseBackpackArg(args[0])
				if err != nil {
					return err
				}
				scores, err := a.ledger.Scores(ctx, backpackID)
				if err != nil {
					return err
				}
				if scores == nil {
					scores = []models.CategoryScore{}
				}
				return opts.emit(scores, func(w io.Writer) error {
					return writeScores(w, scores)
				})
			})
		},
	}
}

// renderCmd always prints the canonical document, whatever --format says.
func renderCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "render <backpack>",
		Short: "Print the backpack's metadata document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				backpackID, err := parseBackpackArg(args[0])
				if err != nil {
					return err
				}
				doc, err := a.renderer.Render(ctx, backpackID)
				if err != nil {
					return err
				}
				raw, err := doc.Canonical()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(opts.stdout, string(raw))
				return err
			})
		},
	}
}

func verifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <backpack>",
		Short: "Recompute scores from the item sequence and compare with the stored table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				backpackID, err := parseBackpackArg(args[0])
				if err != nil {
					return err
				}
				if err := a.ledger.VerifyScores(ctx, backpackID); err != nil {
					return err
				}
				return opts.emit(map[string]any{"backpack_id": backpackID, "consistent": true}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "backpack %s: scores consistent\n", backpackID)
					return err
				})
			})
		},
	}
}

func replayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <journal.yaml>",
		Short: "Apply a YAML journal and print the resulting documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Load(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				caller, err := opts.caller(a)
				if err != nil {
					return err
				}
				res, err := journal.Replay(ctx, j, journal.Services{
					Identity: a.identity,
					Access:   a.access,
					Ledger:   a.ledger,
					Images:   a.images,
					Renderer: a.renderer,
				}, caller)
				if err != nil {
					return err
				}
				for _, doc := range res.Documents {
					raw, err := doc.Canonical()
					if err != nil {
						return err
					}
					if _, err := fmt.Fprintln(opts.stdout, string(raw)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

// Package cli provides the cobra commands for operating on contract drafts
// without the web surface: create, inspect, edit, advance and ask the
// assistant for help.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/gokkuu100/wakiliweb-sub002/internal/assist"
	"github.com/gokkuu100/wakiliweb-sub002/internal/config"
	"github.com/gokkuu100/wakiliweb-sub002/internal/controller"
	"github.com/gokkuu100/wakiliweb-sub002/internal/policy"
	"github.com/gokkuu100/wakiliweb-sub002/internal/store"
)

// NewRootCommand builds the CLI command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "contractwiz",
		Short: "Contract-creation workflow engine",
		Long: `contractwiz drives the contract-creation wizard from the terminal:
create a draft, fill party and term fields, watch mandatory clauses complete,
and advance through the steps under the same gates the web UI enforces.`,
		SilenceUsage: true,
	}

	root.AddCommand(DraftCommand())
	root.AddCommand(ResolvePartyCommand())
	return root
}

// DraftCommand groups the draft lifecycle subcommands.
func DraftCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Create and edit contract drafts",
	}

	cmd.AddCommand(
		draftCreateCmd(),
		draftListCmd(),
		draftShowCmd(),
		draftSetCmd(),
		draftToggleCmd(),
		draftCompleteCmd(),
		draftAdvanceCmd(),
		draftRetreatCmd(),
		draftRenderCmd(),
		draftAssistCmd(),
	)
	return cmd
}

// newManager wires policy, store and assistant from the environment. The
// returned cleanup closes the store and the Gemini client.
func newManager(ctx context.Context) (*controller.Manager, func(), error) {
	pol, err := policy.Load(config.GetPolicyPath())
	if err != nil {
		return nil, nil, err
	}

	backend, err := store.Open(ctx, config.GetDataStoreConfig())
	if err != nil {
		return nil, nil, err
	}

	assistant, err := assist.NewGeminiAssistant(ctx, config.GetAPIKey())
	if err != nil {
		backend.Close()
		return nil, nil, err
	}

	cleanup := func() {
		assistant.Close()
		if cerr := backend.Close(); cerr != nil {
			log.Printf("warning: failed to close store: %v", cerr)
		}
	}

	// A nil assistant is fine: the wizard works without AI help.
	var a assist.Assistant
	if assistant != nil {
		a = assistant
	}
	return controller.NewManager(pol, a, backend), cleanup, nil
}

func draftCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Start a new contract draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mgr, cleanup, err := newManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			session, err := mgr.CreateDraft(ctx)
			if err != nil {
				return err
			}
			defer session.Close()

			fmt.Printf("created draft %s at step %s\n", session.DraftID, session.CurrentStep())
			return nil
		},
	}
}

func draftListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mgr, cleanup, err := newManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			infos, err := mgr.ListDrafts(ctx)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Printf("%s  %-18s  %s\n", info.DraftID, info.CurrentStep, info.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func draftShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <draft-id>",
		Short: "Print a draft's state, gate status and validation errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mgr, cleanup, err := newManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			session, err := mgr.OpenDraft(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			snapshot, err := session.Snapshot()
			if err != nil {
				return err
			}

			var pretty map[string]interface{}
			if err := json.Unmarshal(snapshot, &pretty); err == nil {
				out, _ := json.MarshalIndent(pretty, "", "  ")
				fmt.Println(string(out))
			} else {
				fmt.Println(string(snapshot))
			}

			result := session.GateStatus()
			if result.Allowed {
				fmt.Println("gate: may advance")
			} else {
				fmt.Printf("gate: blocked (%s)\n", result.Code)
				for _, fe := range result.Fields {
					fmt.Printf("  %s: %s\n", fe.Field, fe.Message)
				}
				for _, key := range result.Clauses {
					fmt.Printf("  clause pending: %s\n", key)
				}
			}
			return nil
		},
	}
}

func draftSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <draft-id> <field> <value>",
		Short: "Set a field, e.g. set <id> terms.governing_law Kenya",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDraft(cmd.Context(), args[0], func(ctx context.Context, session *controller.Session) error {
				if err := session.SetField(args[1], args[2]); err != nil {
					return err
				}
				if err := session.Save(ctx); err != nil {
					return err
				}
				compliance := session.Compliance()
				fmt.Printf("set %s (mandatory clauses %d%% complete)\n", args[1], compliance.MandatoryCompletionPercent)
				return nil
			})
		},
	}
}

func draftToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <draft-id> <clause-key>",
		Short: "Toggle an optional clause on or off",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDraft(cmd.Context(), args[0], func(ctx context.Context, session *controller.Session) error {
				if err := session.ToggleClause(args[1]); err != nil {
					return err
				}
				if err := session.Save(ctx); err != nil {
					return err
				}
				fmt.Printf("toggled %s\n", args[1])
				return nil
			})
		},
	}
}

func draftCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <draft-id> <clause-key>",
		Short: "Mark a clause complete (for clauses with no tracked fields)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDraft(cmd.Context(), args[0], func(ctx context.Context, session *controller.Session) error {
				if err := session.MarkClauseComplete(args[1]); err != nil {
					return err
				}
				if err := session.Save(ctx); err != nil {
					return err
				}
				fmt.Printf("marked %s complete\n", args[1])
				return nil
			})
		},
	}
}

func draftAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <draft-id>",
		Short: "Advance to the next wizard step if the gate passes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDraft(cmd.Context(), args[0], func(ctx context.Context, session *controller.Session) error {
				step, err := session.Advance(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("advanced to %s\n", step)
				return nil
			})
		},
	}
}

func draftRetreatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retreat <draft-id>",
		Short: "Go back one step (denied once review has begun)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDraft(cmd.Context(), args[0], func(ctx context.Context, session *controller.Session) error {
				step, err := session.Retreat()
				if err != nil {
					return err
				}
				if err := session.Save(ctx); err != nil {
					return err
				}
				fmt.Printf("went back to %s\n", step)
				return nil
			})
		},
	}
}

func draftRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render <draft-id> <clause-key>",
		Short: "Render a clause's text from the current field values",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDraft(cmd.Context(), args[0], func(ctx context.Context, session *controller.Session) error {
				text, err := session.RenderClause(args[1])
				if err != nil {
					return err
				}
				fmt.Println(text)
				return nil
			})
		},
	}
}

func draftAssistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assist <draft-id> <context>",
		Short: "Ask the AI assistant for suggestions (party_verification, mandatory_clauses, optional_clauses, final_review)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDraft(cmd.Context(), args[0], func(ctx context.Context, session *controller.Session) error {
				report, err := session.RequestAssist(ctx, args[1])
				if err != nil {
					return err
				}
				if err := session.Save(ctx); err != nil {
					return err
				}
				fmt.Printf("applied %d field(s), activated %d clause(s), assessed %d clause(s)\n",
					len(report.AppliedFields), len(report.ActivatedClauses), len(report.AssessedClauses))
				for _, field := range report.AppliedFields {
					fmt.Printf("  filled %s\n", field)
				}
				return nil
			})
		},
	}
}

// ResolvePartyCommand looks up a verified party by identity reference.
func ResolvePartyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <app-id>",
		Short: "Resolve an identity reference against the verified-party registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend, err := store.Open(ctx, config.GetDataStoreConfig())
			if err != nil {
				return err
			}
			defer backend.Close()

			party, err := backend.ResolveParty(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s  %s\n", party.AppID, party.LegalName, party.Email)
			return nil
		},
	}
}

// withDraft opens a draft session, runs fn, and closes the session.
func withDraft(ctx context.Context, draftID string, fn func(context.Context, *controller.Session) error) error {
	mgr, cleanup, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	session, err := mgr.OpenDraft(ctx, draftID)
	if err != nil {
		return err
	}
	defer session.Close()

	return fn(ctx, session)
}

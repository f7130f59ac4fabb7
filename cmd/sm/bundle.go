package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/scanmark/scanmark/internal/models"
	"github.com/scanmark/scanmark/internal/proto"
	"github.com/spf13/cobra"
)

func newBundleCmd() *cobra.Command {
	var remote remoteFlags

	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Scan bundle management commands",
	}
	remote.register(cmd)

	cmd.AddCommand(newBundleListCmd(&remote))
	cmd.AddCommand(newBundleShowCmd(&remote))
	cmd.AddCommand(newBundlePushCmd(&remote))
	cmd.AddCommand(newBundleLockCmd(&remote))
	cmd.AddCommand(newBundleUnlockCmd(&remote))
	cmd.AddCommand(newBundleDiscardUnknownsCmd(&remote))
	return cmd
}

func newBundleListCmd(remote *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bundles and their page-state census",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := remote.session(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer m.Logout(cmd.Context(), false)

			bundles, err := m.Bundles(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSLUG\tOWNER\tPAGES\tUNKNOWN\tSTATE")
			for _, b := range bundles {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					b.ID, b.Slug, b.Owner, b.PageCount,
					b.PageStates[models.PageUnknown], bundleState(&b))
			}
			return w.Flush()
		},
	}
}

func newBundleShowCmd(remote *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <bundle-id>",
		Short: "Show one bundle in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := remote.session(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer m.Logout(cmd.Context(), false)

			b, err := m.Bundle(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Bundle %s (%s), uploaded by %s\n", b.ID, b.Slug, b.Owner)
			fmt.Fprintf(out, "State: %s, QR reading %s\n", bundleState(b), doneOrPending(b.QRReadComplete))
			fmt.Fprintf(out, "Pages: %d total\n", b.PageCount)
			for _, status := range []string{
				models.PageUnknown, models.PageKnown, models.PageExtra,
				models.PageDiscard, models.PageError,
			} {
				if n := b.PageStates[status]; n > 0 {
					fmt.Fprintf(out, "  %s: %d\n", status, n)
				}
			}
			return nil
		},
	}
}

func newBundlePushCmd(remote *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "push <bundle-id>",
		Short: "Promote a bundle's pages into the marking task pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := remote.session(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer m.Logout(cmd.Context(), false)

			reply, err := m.Push(cmd.Context(), args[0])
			if err != nil {
				if pages := errorPages(err); len(pages) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Pages not ready: %v\n", pages)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pushed: %d papers touched, %d tasks created, %d extras added\n",
				reply.PapersTouched, reply.TasksCreated, reply.ExtrasAdded)
			return nil
		},
	}
}

func newBundleLockCmd(remote *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "lock <bundle-id>",
		Short: "Freeze a bundle against edits by other users",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := remote.session(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer m.Logout(cmd.Context(), false)

			if err := m.LockBundle(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Locked %s\n", args[0])
			return nil
		},
	}
}

func newBundleUnlockCmd(remote *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <bundle-id>",
		Short: "Release a bundle's freeze",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := remote.session(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer m.Logout(cmd.Context(), false)

			if err := m.UnlockBundle(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unlocked %s\n", args[0])
			return nil
		},
	}
}

func newBundleDiscardUnknownsCmd(remote *remoteFlags) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "discard-unknowns <bundle-id>",
		Short: "Discard every unknown page of a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := remote.session(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer m.Logout(cmd.Context(), false)

			n, err := m.DiscardAllUnknowns(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Discarded %d pages\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "bulk discard", "reason recorded on each page")
	return cmd
}

func bundleState(b *proto.BundleReply) string {
	switch {
	case b.Pushed:
		return "pushed"
	case b.LockedBy != "":
		return "locked by " + b.LockedBy
	default:
		return "open"
	}
}

func doneOrPending(done bool) string {
	if done {
		return "complete"
	}
	return "pending"
}

// errorPages pulls the offending page list out of a validation failure.
func errorPages(err error) []int {
	var pe *proto.Error
	if errors.As(err, &pe) {
		return pe.Pages
	}
	return nil
}

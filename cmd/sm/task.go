package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTaskCmd() *cobra.Command {
	var remote remoteFlags

	cmd := &cobra.Command{
		Use:   "task",
		Short: "Marking task management commands",
	}
	remote.register(cmd)

	cmd.AddCommand(newTaskProgressCmd(&remote))
	cmd.AddCommand(newTaskResetCmd(&remote))
	cmd.AddCommand(newTaskReassignCmd(&remote))
	cmd.AddCommand(newTaskTagCmd(&remote))
	cmd.AddCommand(newTaskUntagCmd(&remote))
	return cmd
}

func newTaskProgressCmd(remote *remoteFlags) *cobra.Command {
	var (
		question int
		version  int
	)

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show marking progress for a question",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := remote.session(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer m.Logout(cmd.Context(), false)

			snapshot, err := m.Progress(cmd.Context(), question, version)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Question %d", question)
			if version > 0 {
				fmt.Fprintf(out, " (version %d)", version)
			}
			fmt.Fprintf(out, ": %d/%d marked\n", snapshot.TotalMarked, snapshot.TotalTasks)
			fmt.Fprintf(out, "You: %d claimed, %d marked", snapshot.UserClaimed, snapshot.UserMarked)
			if snapshot.QuotaLimit > 0 {
				fmt.Fprintf(out, " (quota %d)", snapshot.QuotaLimit)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&question, "question", "q", 1, "question index")
	cmd.Flags().IntVarP(&version, "version", "v", 0, "paper version (0 for all)")
	return cmd
}

func newTaskResetCmd(remote *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <task-code>",
		Short: "Return a task to the pool, discarding any claim or mark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := remote.session(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer m.Logout(cmd.Context(), false)

			if err := m.Reset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", args[0])
			return nil
		},
	}
}

func newTaskReassignCmd(remote *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reassign <task-code> <new-owner>",
		Short: "Hand a claimed task to a different marker",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := remote.session(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer m.Logout(cmd.Context(), false)

			if err := m.Reassign(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reassigned %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func newTaskTagCmd(remote *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <task-code> <tag>",
		Short: "Attach a tag to a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := remote.session(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer m.Logout(cmd.Context(), false)

			if err := m.AddTag(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tagged %s with %q\n", args[0], args[1])
			return nil
		},
	}
}

func newTaskUntagCmd(remote *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "untag <task-code> <tag>",
		Short: "Detach a tag from a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := remote.session(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer m.Logout(cmd.Context(), false)

			if err := m.RemoveTag(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Untagged %q from %s\n", args[1], args[0])
			return nil
		},
	}
}

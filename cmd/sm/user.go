package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/scanmark/scanmark/internal/auth"
	"github.com/scanmark/scanmark/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User account management commands",
	}

	cmd.AddCommand(newUserAddCmd())
	cmd.AddCommand(newUserListCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var (
		configPath string
		role       string
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAdd(cmd, configPath, args[0], role)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "scanmark.yaml", "path to Scanmark config file")
	cmd.Flags().StringVarP(&role, "role", "r", models.RoleMarker, "role: marker, scanner or manager")
	return cmd
}

func runUserAdd(cmd *cobra.Command, configPath, username, role string) error {
	if !validRole(role) {
		return fmt.Errorf("unknown role %q (want marker, scanner or manager)", role)
	}

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	password, err := promptPassword(cmd)
	if err != nil {
		return err
	}

	if _, err := auth.CreateUser(gormDB, username, password, role); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q\n", role, username)
	return nil
}

func newUserListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "scanmark.yaml", "path to Scanmark config file")
	return cmd
}

func runUserList(cmd *cobra.Command, configPath string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	var users []models.User
	if err := gormDB.Order("username").Find(&users).Error; err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tACTIVE\tCREATED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", u.Username, u.Role, u.Active, u.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func validRole(role string) bool {
	switch role {
	case models.RoleMarker, models.RoleScanner, models.RoleManager:
		return true
	}
	return false
}

// promptPassword reads a password without echo when stdin is a
// terminal, or a plain line otherwise (piped input, tests).
func promptPassword(cmd *cobra.Command) (string, error) {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, "Password: ")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		return "", fmt.Errorf("read password: no input")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

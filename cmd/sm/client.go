package main

import (
	"context"

	"github.com/scanmark/scanmark/internal/messenger"
	"github.com/spf13/cobra"
)

// remoteFlags are the connection flags shared by every command that
// talks to a running server instead of the database.
type remoteFlags struct {
	serverURL string
	username  string
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&f.serverURL, "server", "s", "http://127.0.0.1:41984", "Scanmark server URL")
	cmd.PersistentFlags().StringVarP(&f.username, "user", "u", "", "username to authenticate as")
}

// session negotiates, prompts for the password and logs in.
func (f *remoteFlags) session(ctx context.Context, cmd *cobra.Command) (*messenger.Messenger, error) {
	m, err := messenger.New(messenger.Opts{BaseURL: f.serverURL})
	if err != nil {
		return nil, err
	}
	if err := m.Negotiate(ctx); err != nil {
		return nil, err
	}
	password, err := promptPassword(cmd)
	if err != nil {
		return nil, err
	}
	if err := m.Login(ctx, f.username, password, false); err != nil {
		return nil, err
	}
	return m, nil
}

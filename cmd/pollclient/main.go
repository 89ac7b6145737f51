package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"live-polling-backend/models"
	"live-polling-backend/recovery"

	"github.com/spf13/cobra"
)

const reconnectDelay = 2 * time.Second

type clientFlags struct {
	server  string
	name    string
	token   string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &clientFlags{}
	rootCmd := &cobra.Command{
		Use:          "pollclient",
		Short:        "Command line participant and presenter for a live polling server",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&f.server, "server", "http://localhost:8090", "server base URL")
	rootCmd.PersistentFlags().StringVar(&f.name, "name", "", "participant identity")
	rootCmd.PersistentFlags().StringVar(&f.token, "token", "", "presenter capability token from login")
	rootCmd.PersistentFlags().DurationVar(&f.timeout, "timeout", recovery.DefaultTimeout, "timeout for each request")

	rootCmd.AddCommand(
		newLoginCmd(f),
		newStateCmd(f),
		newWatchCmd(f),
		newVoteCmd(f),
		newChatCmd(f),
		newCreateCmd(f),
		newKickCmd(f),
	)
	return rootCmd
}

func (f *clientFlags) client() *recovery.Client {
	role := recovery.RoleParticipant
	if f.token != "" {
		role = recovery.RolePresenter
	}
	return recovery.New(recovery.Config{
		BaseURL:  f.server,
		Identity: f.name,
		Token:    f.token,
		Role:     role,
		Timeout:  f.timeout,
	})
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLoginCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Obtain a presenter name and token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, token, err := recovery.TeacherLogin(cmd.Context(), f.server, f.timeout)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"username": username, "token": token})
		},
	}
}

func newStateCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the recovered session state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd, f.client().Recover(cmd.Context()))
		},
	}
}

func newWatchCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Recover the session and follow live events until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c := f.client()
			defer c.Close()
			for {
				err := watchOnce(ctx, cmd, f, c)
				switch {
				case errors.Is(err, context.Canceled):
					return nil
				case errors.Is(err, recovery.ErrConnectionLost):
					fmt.Fprintf(cmd.ErrOrStderr(), "%v, reconnecting in %s\n", err, reconnectDelay)
				default:
					return err
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(reconnectDelay):
				}
			}
		},
	}
}

// watchOnce runs one connect, recover and listen cycle.
func watchOnce(ctx context.Context, cmd *cobra.Command, f *clientFlags, c *recovery.Client) error {
	st, err := c.Resume(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := printJSON(cmd, st); err != nil {
		return err
	}
	if f.name != "" && f.token == "" {
		go func() {
			if err := c.JoinRoster(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "join roster: %v\n", err)
			}
		}()
	}
	return c.Listen(ctx, func(st recovery.State) { _ = printJSON(cmd, st) })
}

// withLive connects, recovers and runs fn while the live channel is read.
func withLive(ctx context.Context, f *clientFlags, fn func(*recovery.Client) error) error {
	c := f.client()
	if _, err := c.Resume(ctx); err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = c.Listen(ctx, nil) }()
	return fn(c)
}

func newVoteCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "vote <option>",
		Short: "Vote on the active poll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.name == "" {
				return errors.New("--name is required to vote")
			}
			return withLive(cmd.Context(), f, func(c *recovery.Client) error {
				if err := c.Vote(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "vote accepted")
				return nil
			})
		},
	}
}

func newChatCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Post a chat message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLive(cmd.Context(), f, func(c *recovery.Client) error {
				return c.Chat(cmd.Context(), strings.Join(args, " "))
			})
		},
	}
}

func newCreateCmd(f *clientFlags) *cobra.Command {
	var question string
	var options []string
	var timer int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a poll (presenter)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := models.CreatePollInput{Question: question, Timer: models.TimerSeconds(timer)}
			for _, text := range options {
				in.Options = append(in.Options, models.Option{Text: text})
			}
			return withLive(cmd.Context(), f, func(c *recovery.Client) error {
				if err := c.CreatePoll(cmd.Context(), in); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "poll started")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&question, "question", "", "poll question")
	cmd.Flags().StringSliceVar(&options, "option", nil, "answer option (repeatable)")
	cmd.Flags().IntVar(&timer, "timer", 60, "duration in seconds")
	return cmd
}

func newKickCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "kick <identity>",
		Short: "Remove a participant (presenter)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLive(cmd.Context(), f, func(c *recovery.Client) error {
				return c.Kick(cmd.Context(), args[0])
			})
		},
	}
}

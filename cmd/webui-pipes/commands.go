package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/events"
	"github.com/Dmi3yy/webui-pipes/internal/pipeline"
	"github.com/Dmi3yy/webui-pipes/internal/prompt"
)

func newPromptCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prompt",
		Short: "Print the pipeline prompt snippet and its token count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(cmd, flags)
			if err != nil {
				return err
			}
			text := svc.PromptSnippet()
			tokens, err := prompt.TokenCount(text)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if text != "" {
				fmt.Fprintln(out, text)
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "tokens: %d\n", tokens)
			return nil
		},
	}
}

func newACLCmd(flags *globalFlags) *cobra.Command {
	aclCmd := &cobra.Command{
		Use:   "acl",
		Short: "Inspect pipeline access rules",
	}

	var userID, role, pipeID string
	check := &cobra.Command{
		Use:   "check",
		Short: "Report whether a user may run a pipeline; exits 1 when denied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(cmd, flags)
			if err != nil {
				return err
			}
			user := &domain.User{ID: userID, Role: role}
			groups := svc.ACL().AllowedGroups(user)
			allowed := svc.ACL().IsPipeAllowed(pipeID, user, svc.Manifests().Load())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "groups: %s\n", strings.Join(groups, ", "))
			if !allowed {
				fmt.Fprintf(out, "%s: denied\n", pipeID)
				return errDenied
			}
			fmt.Fprintf(out, "%s: allowed\n", pipeID)
			return nil
		},
	}
	check.Flags().StringVar(&userID, "user-id", "", "user id")
	check.Flags().StringVar(&role, "role", "", "user role")
	check.Flags().StringVar(&pipeID, "pipe", "", "pipeline id")
	_ = check.MarkFlagRequired("pipe")

	aclCmd.AddCommand(check)
	return aclCmd
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		metadata   string
		userPrompt string
		stream     bool
		userID     string
		role       string
	)
	cmd := &cobra.Command{
		Use:   "run <pipe-id>",
		Short: "Run a pipeline through the pipeline service and print its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var meta domain.Metadata
			if metadata != "" {
				if err := json.Unmarshal([]byte(metadata), &meta); err != nil {
					return fmt.Errorf("invalid --metadata: %w", err)
				}
			}
			svc, err := newService(cmd, flags)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			sink := events.SinkFunc(func(_ context.Context, ev events.Event) error {
				line, err := domain.MarshalUnescaped(ev)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, line)
				return err
			})

			var user *domain.User
			if userID != "" || role != "" {
				user = &domain.User{ID: userID, Role: role}
			}
			result := svc.Runner().Run(cmd.Context(), pipeline.Request{
				PipeID:     args[0],
				Metadata:   meta,
				UserPrompt: userPrompt,
				Stream:     stream,
			}, user, sink)
			if result != "" {
				fmt.Fprintln(out, result)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metadata, "metadata", "", "pipeline metadata as a JSON object")
	cmd.Flags().StringVar(&userPrompt, "prompt", "", "user prompt passed to the pipeline")
	cmd.Flags().BoolVar(&stream, "stream", false, "relay pipeline events while it runs")
	cmd.Flags().StringVar(&userID, "user-id", "", "run as this user id")
	cmd.Flags().StringVar(&role, "role", "", "run with this role")
	return cmd
}

package main

import (
	"fmt"
	"strconv"

	"fanlive/internal/repository"

	"github.com/spf13/cobra"
)

func newGroupsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Manage user group membership",
		Long: `Manage the user groups referenced by the admin settings.

Examples:
  livectl groups list reschedule_exempt
  livectl groups add notify_restricted 17
  livectl groups remove notify_restricted 17`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <group>",
			Short: "List the members of a group",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := e.connect(); err != nil {
					return err
				}
				ids, err := repository.NewGroupRepository(e.db).Members(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd, map[string]any{"group": args[0], "members": ids})
			},
		},
		&cobra.Command{
			Use:   "add <group> <user-id>",
			Short: "Add a user to a group",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.changeMembership(cmd, args, true)
			},
		},
		&cobra.Command{
			Use:   "remove <group> <user-id>",
			Short: "Remove a user from a group",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.changeMembership(cmd, args, false)
			},
		},
	)
	return cmd
}

func (e *env) changeMembership(cmd *cobra.Command, args []string, add bool) error {
	userID, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil || userID == 0 {
		return fmt.Errorf("invalid user id %q", args[1])
	}
	if err := e.connect(); err != nil {
		return err
	}
	groups := repository.NewGroupRepository(e.db)
	if add {
		err = groups.Add(cmd.Context(), args[0], uint(userID))
	} else {
		err = groups.Remove(cmd.Context(), args[0], uint(userID))
	}
	if err != nil {
		return err
	}
	verb := "removed from"
	if add {
		verb = "added to"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "user %d %s %s\n", userID, verb, args[0])
	return nil
}

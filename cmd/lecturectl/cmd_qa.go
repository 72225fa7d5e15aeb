package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lecturelink/backend/internal/models"
)

var askCmd = &cobra.Command{
	Use:   "ask <code> <page> <text...>",
	Short: "Post a question on a lecture page",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runAsk,
}

var commentCmd = &cobra.Command{
	Use:   "comment <code> <page> <text...>",
	Short: "Post a comment on a lecture page",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runComment,
}

var ackCmd = &cobra.Command{
	Use:   "ack <code> <page> <question-id>",
	Short: "Acknowledge a question on one of your lectures",
	Args:  cobra.ExactArgs(3),
	RunE:  runAck,
}

var reactCmd = &cobra.Command{
	Use:   "react <code> <question|comment> <id>",
	Short: "Toggle your reaction on a question or comment",
	Args:  cobra.ExactArgs(3),
	RunE:  runReact,
}

var threadCmd = &cobra.Command{
	Use:   "thread <code> [page]",
	Short: "Print the questions and comments of one page, or every page",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runThread,
}

func parsePage(s string) (int, error) {
	page, err := strconv.Atoi(s)
	if err != nil || page < 0 {
		return 0, fmt.Errorf("page must be a non-negative integer, got %q", s)
	}
	return page, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	page, err := parsePage(args[1])
	if err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	q, err := s.client.PostQuestion(ctx, args[0], page, strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Question #%d posted on page %d\n", q.ID, q.PageIndex)
	return nil
}

func runComment(cmd *cobra.Command, args []string) error {
	page, err := parsePage(args[1])
	if err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	c, err := s.client.PostComment(ctx, args[0], page, strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Comment #%d posted on page %d\n", c.ID, c.PageIndex)
	return nil
}

func runAck(cmd *cobra.Command, args []string) error {
	page, err := parsePage(args[1])
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid question id %q", args[2])
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	if err := requireInstructor(s); err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	q, err := s.client.Acknowledge(ctx, args[0], page, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Acknowledged #%d: %s\n", q.ID, q.Text)
	return nil
}

func runReact(cmd *cobra.Command, args []string) error {
	itemType := models.ItemType(strings.ToLower(args[1]))
	if !itemType.Valid() {
		return fmt.Errorf("item type must be question or comment")
	}
	id, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid item id %q", args[2])
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	r, err := s.client.ToggleReaction(ctx, args[0], itemType, id)
	if err != nil {
		return err
	}
	state := "removed"
	if r.Voted {
		state = "added"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reaction %s (%d total)\n", state, r.Count)
	return nil
}

func runThread(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	out := cmd.OutOrStdout()
	if len(args) == 2 {
		page, err := parsePage(args[1])
		if err != nil {
			return err
		}
		t, err := s.client.Page(ctx, args[0], page)
		if err != nil {
			return err
		}
		fmt.Fprint(out, formatThread(page, t))
		return nil
	}
	pages, err := s.client.AllPages(ctx, args[0])
	if err != nil {
		return err
	}
	for _, page := range sortedPages(pages) {
		fmt.Fprint(out, formatThread(page, pages[page]))
	}
	return nil
}

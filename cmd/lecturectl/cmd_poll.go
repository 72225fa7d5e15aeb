package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lecturelink/backend/internal/syncloop"
	"github.com/lecturelink/backend/pkg/client"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Create, activate, list and vote in polls",
}

var pollCreateFlags struct {
	lecture  string
	question string
	options  []string
	duration int
	activate bool
}

var pollCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a draft poll (optionally activating it right away)",
	Args:  cobra.NoArgs,
	RunE:  runPollCreate,
}

var pollActivateCmd = &cobra.Command{
	Use:   "activate <poll-id>",
	Short: "Start a draft poll's countdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runPollActivate,
}

var pollListFlags struct {
	lecture string
	all     bool
}

var pollListCmd = &cobra.Command{
	Use:   "list",
	Short: "List polls, newest first",
	Args:  cobra.NoArgs,
	RunE:  runPollList,
}

var pollVoteCmd = &cobra.Command{
	Use:   "vote <poll-id> <option-number>",
	Short: "Vote in an active poll (options are numbered from 1)",
	Args:  cobra.ExactArgs(2),
	RunE:  runPollVote,
}

func init() {
	f := pollCreateCmd.Flags()
	f.StringVar(&pollCreateFlags.lecture, "lecture", "", "Lecture access code")
	f.StringVar(&pollCreateFlags.question, "question", "", "Poll question (required)")
	f.StringArrayVar(&pollCreateFlags.options, "option", nil, "Answer option (repeat, at least two)")
	f.IntVar(&pollCreateFlags.duration, "duration", 60, "Duration in seconds (30, 60, 90 or 120)")
	f.BoolVar(&pollCreateFlags.activate, "activate", false, "Activate immediately")
	_ = pollCreateCmd.MarkFlagRequired("question")

	lf := pollListCmd.Flags()
	lf.StringVar(&pollListFlags.lecture, "lecture", "", "Only polls of this lecture")
	lf.BoolVar(&pollListFlags.all, "all", false, "Include other instructors' polls")

	pollCmd.AddCommand(pollCreateCmd)
	pollCmd.AddCommand(pollActivateCmd)
	pollCmd.AddCommand(pollListCmd)
	pollCmd.AddCommand(pollVoteCmd)
}

func runPollCreate(cmd *cobra.Command, _ []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	if err := requireInstructor(s); err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	p, err := s.client.CreatePoll(ctx, client.PollInput{
		InstructorID:    s.profile.InstructorID,
		LectureCode:     pollCreateFlags.lecture,
		Question:        pollCreateFlags.question,
		Options:         pollCreateFlags.options,
		DurationSeconds: pollCreateFlags.duration,
	})
	if err != nil {
		return err
	}
	if pollCreateFlags.activate {
		if p, err = s.client.ActivatePoll(ctx, p.ID); err != nil {
			return err
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), formatPoll(p, time.Now()))
	return nil
}

func runPollActivate(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid poll id %q", args[0])
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	p, err := s.client.ActivatePoll(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), formatPoll(p, time.Now()))
	return nil
}

func runPollList(cmd *cobra.Command, _ []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	instructorID := s.profile.InstructorID
	if pollListFlags.all {
		instructorID = ""
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	list, err := s.client.ListPolls(ctx, instructorID, pollListFlags.lecture)
	if err != nil {
		return err
	}
	now := time.Now()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLECTURE\tSTATUS\tVOTES\tQUESTION")
	for i := range list {
		p := &list[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.ID, p.LectureCode, p.Status(now), p.TotalVotes(), p.Question)
	}
	return tw.Flush()
}

func runPollVote(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid poll id %q", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 1 {
		return fmt.Errorf("option number must be a positive integer")
	}
	s, err := openSession()
	if err != nil {
		return err
	}

	flags := syncloop.NewFileFlags(s.profile.Path())
	if voted, _ := flags.Get(syncloop.VotedKey(id)); voted {
		return syncloop.ErrAlreadyVoted
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	p, err := s.client.Vote(ctx, id, n-1)
	if err != nil {
		return err
	}
	if err := flags.Set(syncloop.VotedKey(id)); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), formatPoll(p, time.Now()))
	return nil
}

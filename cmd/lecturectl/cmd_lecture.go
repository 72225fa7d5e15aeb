package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var uploadFlags struct {
	title string
	pages int
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a lecture document and print its access code",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

var lecturesCmd = &cobra.Command{
	Use:   "lectures",
	Short: "List your lectures",
	Args:  cobra.NoArgs,
	RunE:  runLectures,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <code>",
	Short: "Delete one of your lectures with its polls, Q&A and reactions",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var summaryCmd = &cobra.Command{
	Use:   "summary <code>",
	Short: "Show a lecture's activity counters",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func init() {
	f := uploadCmd.Flags()
	f.StringVar(&uploadFlags.title, "title", "", "Lecture title (default: file name)")
	f.IntVar(&uploadFlags.pages, "pages", 0, "Number of pages in the document")
}

func runUpload(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	if err := requireInstructor(s); err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	l, err := s.client.UploadLecture(ctx, args[0], uploadFlags.title, uploadFlags.pages)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Lecture:     %s\n", l.Title)
	fmt.Fprintf(out, "Access code: %s\n", l.AccessCode)
	fmt.Fprintf(out, "Pages:       %d\n", l.PageCount)
	return nil
}

func runLectures(cmd *cobra.Command, _ []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	if err := requireInstructor(s); err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	list, err := s.client.MyLectures(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No lectures yet. Upload one with 'lecturectl upload <file>'.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tTITLE\tPAGES\tCREATED")
	for _, l := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", l.AccessCode, l.Title, l.PageCount, l.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runDelete(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	if err := requireInstructor(s); err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	if err := s.client.DeleteLecture(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	if err := requireInstructor(s); err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	sum, err := s.client.Summary(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Lecture:      %s (%s)\n", sum.Title, sum.AccessCode)
	fmt.Fprintf(out, "Questions:    %d (%d acknowledged, %.0f%%)\n", sum.QuestionsCount, sum.AcknowledgedCount, sum.AnsweredPercent)
	fmt.Fprintf(out, "Comments:     %d\n", sum.CommentsCount)
	fmt.Fprintf(out, "Polls:        %d (%d votes)\n", sum.PollsCount, sum.VotesCount)
	fmt.Fprintf(out, "Unanswered:   %s\n", formatPages(sum.UnansweredPages))
	return nil
}

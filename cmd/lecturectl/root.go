// lecturectl drives a LectureLink server from the terminal: instructor account and lecture
// management, polls, Q&A, and a live watch view for either role.
//
// Usage:
//
//	lecturectl login --username=<name> [--register]
//	lecturectl upload <file> [--title=<t>] [--pages=<n>]
//	lecturectl watch <code> [--role=student|instructor]
//	lecturectl poll create --lecture=<code> --question=<q> --option=a --option=b [--duration=60]
//	lecturectl ask <code> <page> <text>
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lecturelink/backend/pkg/client"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	profile string
	server  string
	timeout time.Duration
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "lecturectl",
	Short: "Terminal client for LectureLink live lectures",
	Long: "lecturectl talks to a LectureLink server: upload lectures, run polls,\n" +
		"post and acknowledge questions, and follow a lecture live as a student or instructor.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	home, _ := os.UserHomeDir()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.profile, "profile", filepath.Join(home, ".lecturectl.yaml"), "Profile file (server, token, voter id, local flags)")
	pf.StringVar(&rootFlags.server, "server", "", "Server base URL (overrides the profile)")
	pf.DurationVar(&rootFlags.timeout, "timeout", 10*time.Second, "Per-request timeout")
	pf.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Log requests to stderr")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(lecturesCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(ackCmd)
	rootCmd.AddCommand(reactCmd)
	rootCmd.AddCommand(threadCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	if !rootFlags.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// session bundles what every command needs: the loaded profile and a client built from it.
type session struct {
	profile *Profile
	client  *client.Client
	logger  *zap.Logger
}

func openSession() (*session, error) {
	p, err := LoadProfile(rootFlags.profile)
	if err != nil {
		return nil, err
	}
	if rootFlags.server != "" {
		p.BaseURL = rootFlags.server
	}
	if p.VoterID == "" {
		p.VoterID = newVoterID()
		if err := p.Save(); err != nil {
			return nil, err
		}
	}
	logger := newLogger()
	c, err := p.Client(rootFlags.timeout, logger)
	if err != nil {
		return nil, err
	}
	return &session{profile: p, client: c, logger: logger}, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), rootFlags.timeout)
}

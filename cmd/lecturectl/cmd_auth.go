package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lecturelink/backend/pkg/client"
)

var loginFlags struct {
	username string
	password string
	register bool
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in as an instructor and store the token in the profile",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored instructor token",
	RunE:  runLogout,
}

func init() {
	f := loginCmd.Flags()
	f.StringVar(&loginFlags.username, "username", "", "Instructor username (required)")
	f.StringVar(&loginFlags.password, "password", "", "Password (default $LECTURECTL_PASSWORD)")
	f.BoolVar(&loginFlags.register, "register", false, "Create the account first")

	_ = loginCmd.MarkFlagRequired("username")
}

func runLogin(cmd *cobra.Command, _ []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	password := loginFlags.password
	if password == "" {
		password = os.Getenv("LECTURECTL_PASSWORD")
	}
	if password == "" {
		return fmt.Errorf("password required (--password or $LECTURECTL_PASSWORD)")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	var auth *client.Session
	if loginFlags.register {
		auth, err = s.client.Register(ctx, loginFlags.username, password)
	} else {
		auth, err = s.client.Login(ctx, loginFlags.username, password)
	}
	if err != nil {
		return err
	}

	s.profile.Token = auth.Token
	s.profile.InstructorID = auth.Instructor.ID.String()
	s.profile.Username = auth.Instructor.Username
	if err := s.profile.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", auth.Instructor.Username, auth.Instructor.ID)
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	p, err := LoadProfile(rootFlags.profile)
	if err != nil {
		return err
	}
	p.Token, p.InstructorID, p.Username = "", "", ""
	if err := p.Save(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

func requireInstructor(s *session) error {
	if s.profile.Token == "" {
		return fmt.Errorf("not logged in; run 'lecturectl login' first")
	}
	return nil
}

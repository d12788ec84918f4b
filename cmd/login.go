package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kozaktomas/staff-portal/internal/camera"
	"github.com/kozaktomas/staff-portal/internal/login"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Run a login attempt from the command line",
	Long: `Run a password or face login through the same engine the portal uses.
Successful attempts update the directory's last-login timestamp.`,
}

var loginPasswordCmd = &cobra.Command{
	Use:   "password <identity>",
	Short: "Log in with a password",
	Long: `Log in with a password. The identity is an email address or, with
IDENTITY_KEY=name, a display name. The password is read from --password or,
when the flag is omitted, from the first line of standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoginPassword,
}

var loginFaceCmd = &cobra.Command{
	Use:   "face",
	Short: "Log in with a face scan replayed from image files",
	Long: `Log in with a face scan. Frames are read from the JPEG and PNG files in
--frames in name order, up to MATCH_FRAMES of them.`,
	Args: cobra.NoArgs,
	RunE: runLoginFace,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.AddCommand(loginPasswordCmd)
	loginCmd.AddCommand(loginFaceCmd)

	loginPasswordCmd.Flags().String("password", "", "Password (read from stdin when omitted)")
	loginFaceCmd.Flags().String("frames", "", "Directory with captured frames")
	loginFaceCmd.Flags().Bool("verbose", false, "Print the internal outcome reason and distances")
	_ = loginFaceCmd.MarkFlagRequired("frames")
}

func readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printResult(res login.Result, verbose bool) error {
	fmt.Println(res.Message())
	if verbose {
		fmt.Printf("  Reason:   %s\n", res.Reason)
		if res.IdentityKey != "" {
			fmt.Printf("  Identity: %s\n", res.IdentityKey)
		}
		if res.Method == login.MethodFace {
			fmt.Printf("  Distance: %.4f\n", res.Distance)
			fmt.Printf("  Gap:      %.4f\n", res.Gap)
		}
	}
	if res.OK {
		fmt.Printf("Signed in as %s (session %s)\n", res.IdentityKey, res.SessionID)
		return nil
	}
	return errors.New("login failed")
}

func runLoginPassword(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	password := mustGetString(cmd, "password")
	if password == "" {
		var err error
		if password, err = readPassword(); err != nil {
			return err
		}
	}

	b, err := loadBackends(ctx, true)
	if err != nil {
		return err
	}
	defer b.Close()

	opts, err := b.options()
	if err != nil {
		return err
	}
	engine := login.NewSession(b.loginDeps(nil, nil), opts)
	defer engine.Close()

	return printResult(engine.LoginWithPassword(ctx, args[0], password), false)
}

func runLoginFace(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	src, err := camera.OpenDir(mustGetString(cmd, "frames"))
	if err != nil {
		return err
	}
	defer src.Close()

	b, err := loadBackends(ctx, true)
	if err != nil {
		return err
	}
	defer b.Close()

	opts, err := b.options()
	if err != nil {
		return err
	}
	engine := login.NewSession(b.loginDeps(nil, nil), opts)
	defer engine.Close()

	fmt.Println("Loading enrolled faces...")
	if err := engine.Init(ctx); err != nil {
		fmt.Printf("Warning: %v\n", err)
	} else {
		fmt.Printf("Enrolled faces: %d\n", engine.Enrolled())
	}

	return printResult(engine.LoginWithFace(ctx, src), mustGetBool(cmd, "verbose"))
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/staff-portal/internal/enroll"
	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage staff accounts in the directory",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List directory accounts",
	Args:  cobra.NoArgs,
	RunE:  runUsersList,
}

var usersRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new account",
	Long: `Register a new account. The password is hashed before it is stored and
the optional face image is uploaded to the image store as the enrollment
reference.`,
	Args: cobra.NoArgs,
	RunE: runUsersRegister,
}

var usersSetFaceCmd = &cobra.Command{
	Use:   "set-face <identity> <image>",
	Short: "Replace the enrollment image of an account",
	Args:  cobra.ExactArgs(2),
	RunE:  runUsersSetFace,
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersRegisterCmd)
	usersCmd.AddCommand(usersSetFaceCmd)

	usersListCmd.Flags().Bool("json", false, "Output as JSON")

	usersRegisterCmd.Flags().String("email", "", "Email address")
	usersRegisterCmd.Flags().String("name", "", "Display name")
	usersRegisterCmd.Flags().String("password", "", "Password (read from stdin when omitted)")
	usersRegisterCmd.Flags().String("role", enroll.DefaultRole, "Role")
	usersRegisterCmd.Flags().String("face", "", "Path to a JPEG or PNG face image")
	_ = usersRegisterCmd.MarkFlagRequired("email")
}

func newEnrollService(b *backends) *enroll.Service {
	return enroll.NewService(b.directory, b.images, b.kind, b.log)
}

func runUsersList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := loadBackends(ctx, false)
	if err != nil {
		return err
	}
	defer b.Close()

	users, err := newEnrollService(b).Users(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	if len(users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tNAME\tROLE\tBLOCKED\tFACE\tLAST LOGIN")
	fmt.Fprintln(w, "-----\t----\t----\t-------\t----\t----------")
	for _, u := range users {
		blocked := ""
		if u.Blocked {
			blocked = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", u.Email, u.Name, u.Role, blocked, u.FaceImageFile, u.LastLogin)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d users\n", len(users))
	return nil
}

func runUsersRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	reg := enroll.Registration{
		Email:    mustGetString(cmd, "email"),
		Name:     mustGetString(cmd, "name"),
		Password: mustGetString(cmd, "password"),
		Role:     mustGetString(cmd, "role"),
	}
	if reg.Password == "" {
		var err error
		if reg.Password, err = readPassword(); err != nil {
			return err
		}
	}
	if path := mustGetString(cmd, "face"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading face image: %w", err)
		}
		reg.FaceImage = data
	}

	b, err := loadBackends(ctx, false)
	if err != nil {
		return err
	}
	defer b.Close()

	user, err := newEnrollService(b).Register(ctx, reg)
	if err != nil {
		return err
	}

	fmt.Printf("Registered %s\n", user.Email)
	if user.FaceImageFile != "" {
		fmt.Printf("  Face image: %s\n", user.FaceImageFile)
	}
	return nil
}

func runUsersSetFace(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading face image: %w", err)
	}

	b, err := loadBackends(ctx, false)
	if err != nil {
		return err
	}
	defer b.Close()

	ref, err := newEnrollService(b).SetFace(ctx, args[0], data)
	if err != nil {
		return err
	}
	fmt.Printf("Face image of %s stored as %s\n", args[0], ref)
	return nil
}

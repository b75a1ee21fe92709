package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dropDatabas3/hellodoc/auth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword: flag > HELLODOC_PASSWORD > prompt (sin eco si stdin es una terminal).
func readPassword(flagVal string, in io.Reader, prompt string) (string, error) {
	if flagVal != "" {
		return flagVal, nil
	}
	if v := os.Getenv("HELLODOC_PASSWORD"); v != "" {
		return v, nil
	}
	return readHidden(in, prompt)
}

func readHidden(in io.Reader, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type userView struct {
	UID           string `json:"uid"`
	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
	ProviderID    string `json:"providerId"`
	IDToken       string `json:"idToken,omitempty"`
}

func view(u *auth.User, idToken string) userView {
	return userView{
		UID:           u.UID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		EmailVerified: u.EmailVerified,
		ProviderID:    u.ProviderID,
		IDToken:       idToken,
	}
}

func authCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Operaciones de sesión (con auth.driver=local las cuentas viven sólo en este proceso)",
	}

	var (
		email, pass string
		showToken   bool
	)
	register := &cobra.Command{
		Use:   "register",
		Short: "Registra una cuenta email/password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email es requerido")
			}
			pw, err := readPassword(pass, os.Stdin, "Password: ")
			if err != nil {
				return err
			}
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			u, err := app.Sessions().RegisterWithEmail(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			return c.printUser(cmd, u, showToken)
		},
	}

	login := &cobra.Command{
		Use:   "login",
		Short: "Inicia sesión con email/password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email es requerido")
			}
			pw, err := readPassword(pass, os.Stdin, "Password: ")
			if err != nil {
				return err
			}
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			u, err := app.Sessions().LoginWithEmail(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			return c.printUser(cmd, u, showToken)
		},
	}
	for _, sub := range []*cobra.Command{register, login} {
		sub.Flags().StringVar(&email, "email", "", "Email de la cuenta")
		sub.Flags().StringVar(&pass, "password", "", "Password (si falta se pide por stdin)")
		sub.Flags().BoolVar(&showToken, "show-token", false, "Incluye el ID token en la salida")
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Envía el correo de reseteo de contraseña",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email es requerido")
			}
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Sessions().ResetPassword(cmd.Context(), email); err != nil {
				return err
			}
			return c.print("reset email sent")
		},
	}
	reset.Flags().StringVar(&email, "email", "", "Email de la cuenta")

	provider := &cobra.Command{
		Use:       "provider <google|facebook|github|twitter>",
		Short:     "Login federado con redirect a un listener local",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"google", "facebook", "github", "twitter"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			u, err := app.Sessions().LoginWithProvider(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printUser(cmd, u, showToken)
		},
	}
	provider.Flags().BoolVar(&showToken, "show-token", false, "Incluye el ID token en la salida")

	cmd.AddCommand(register, login, reset, provider)
	return cmd
}

func (c *cli) printUser(cmd *cobra.Command, u *auth.User, withToken bool) error {
	tok := ""
	if withToken {
		t, err := c.app.Sessions().IDToken(cmd.Context())
		if err != nil {
			return err
		}
		tok = t
	}
	return c.print(view(u, tok))
}

package main

import (
	"fmt"
	"os"

	"github.com/dropDatabas3/hellodoc/config"
	"github.com/dropDatabas3/hellodoc/internal/secretbox"
	"github.com/spf13/cobra"
)

func secretCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Sella valores de configuración (dsn, client secrets, smtp)",
	}

	keygen := &cobra.Command{
		Use:   "keygen",
		Short: "Genera una clave para " + config.MasterKeyEnv,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := secretbox.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k)
			return nil
		},
	}

	var value string
	seal := &cobra.Command{
		Use:   "seal",
		Short: "Cifra un valor con " + config.MasterKeyEnv + " (lee stdin si no hay --value)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFiles(c.envFiles...); err != nil {
				return err
			}
			key := os.Getenv(config.MasterKeyEnv)
			if key == "" {
				return fmt.Errorf("%s no seteada; genere una con: hellodoc secret keygen", config.MasterKeyEnv)
			}
			box, err := secretbox.New(key)
			if err != nil {
				return err
			}
			plain := value
			if plain == "" {
				if plain, err = readHidden(cmd.InOrStdin(), "Value: "); err != nil {
					return err
				}
			}
			sealed, err := box.Seal(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
	seal.Flags().StringVar(&value, "value", "", "Valor a cifrar")

	cmd.AddCommand(keygen, seal)
	return cmd
}

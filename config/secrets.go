package config

import (
	"os"

	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/dropDatabas3/hellodoc/internal/secretbox"
)

// MasterKeyEnv contiene la clave con la que se sellaron los secretos "enc:...".
const MasterKeyEnv = envPrefix + "MASTER_KEY"

// secrets devuelve los campos que pueden venir sellados, por nombre YAML.
func (c *Config) secrets() map[string]*string {
	return map[string]*string{
		"store.dsn":                        &c.Store.DSN,
		"store.redis.password":             &c.Store.Redis.Password,
		"auth.signing_key":                 &c.Auth.SigningKey,
		"providers.google.client_secret":   &c.Providers.Google.ClientSecret,
		"providers.facebook.client_secret": &c.Providers.Facebook.ClientSecret,
		"providers.github.client_secret":   &c.Providers.GitHub.ClientSecret,
		"providers.twitter.client_secret":  &c.Providers.Twitter.ClientSecret,
		"storage.secret_key":               &c.Storage.SecretKey,
		"smtp.password":                    &c.SMTP.Password,
	}
}

// OpenSecrets descifra en el lugar los secretos sellados con la clave de
// HELLODOC_MASTER_KEY. Sin valores sellados no hace nada.
func (c *Config) OpenSecrets() error {
	return c.OpenSecretsWithKey(os.Getenv(MasterKeyEnv))
}

// OpenSecretsWithKey es OpenSecrets con una clave explícita.
func (c *Config) OpenSecretsWithKey(key string) error {
	const op = "config.OpenSecrets"
	var box *secretbox.Box
	for name, p := range c.secrets() {
		if !secretbox.IsSealed(*p) {
			continue
		}
		if box == nil {
			if key == "" {
				return errs.Configuration(op).WithTarget(MasterKeyEnv).
					WithMessage(name + " is sealed but " + MasterKeyEnv + " is not set")
			}
			b, err := secretbox.New(key)
			if err != nil {
				return errs.E(errs.KindConfiguration, op, MasterKeyEnv, err)
			}
			box = b
		}
		v, err := box.Open(*p)
		if err != nil {
			return errs.E(errs.KindConfiguration, op, name, err)
		}
		*p = v
	}
	return nil
}

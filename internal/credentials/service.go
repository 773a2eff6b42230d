package credentials

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/chacha20poly1305"

	"momentum-arb-bot/internal/database"
	"momentum-arb-bot/internal/market"
)

// VaultConfig configures the optional HashiCorp Vault backend
type VaultConfig struct {
	Enabled   bool
	Address   string
	Token     string
	MountPath string // KV v2 mount, e.g. "secret"
}

// Service stores and retrieves exchange API credentials. Secrets live in
// Vault when it is enabled and always in Postgres as ChaCha20-Poly1305
// ciphertext, which doubles as the fallback when Vault is unreachable.
// Plaintext credentials only exist in the return value of Get and are never
// logged or cached.
type Service struct {
	repo  *database.Repository
	vault *api.Client
	cfg   VaultConfig
	aead  cipher.AEAD
}

// NewService creates a credentials service. encryptionKey is any
// operator-supplied secret; it is stretched to the cipher's key size.
func NewService(repo *database.Repository, cfg VaultConfig, encryptionKey string) (*Service, error) {
	if encryptionKey == "" {
		return nil, fmt.Errorf("credentials encryption key is required")
	}
	key := sha256.Sum256([]byte(encryptionKey))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	s := &Service{repo: repo, cfg: cfg, aead: aead}

	if cfg.Enabled {
		vaultConfig := api.DefaultConfig()
		vaultConfig.Address = cfg.Address
		client, err := api.NewClient(vaultConfig)
		if err != nil {
			return nil, fmt.Errorf("creating vault client: %w", err)
		}
		client.SetToken(cfg.Token)
		s.vault = client
	}
	return s, nil
}

// Store encrypts and persists credentials for a user on an exchange,
// mirroring them to Vault when enabled. A re-store resets the connected
// flag until the next successful connection test.
func (s *Service) Store(ctx context.Context, userID, exchange string, creds market.Credentials) error {
	if !creds.HasKeys() {
		return fmt.Errorf("api key and secret are required")
	}

	row := &database.Credential{UserID: userID, Exchange: exchange}
	var err error
	if row.APIKeyEnc, err = s.encrypt(creds.APIKey); err != nil {
		return err
	}
	if row.APISecretEnc, err = s.encrypt(creds.APISecret); err != nil {
		return err
	}
	if creds.Passphrase != "" {
		if row.PassphraseEnc, err = s.encrypt(creds.Passphrase); err != nil {
			return err
		}
	}
	if creds.Memo != "" {
		if row.MemoEnc, err = s.encrypt(creds.Memo); err != nil {
			return err
		}
	}

	if err := s.repo.UpsertCredential(ctx, row); err != nil {
		return fmt.Errorf("storing credentials: %w", err)
	}

	if s.vault != nil {
		if err := s.vaultWrite(ctx, userID, exchange, creds); err != nil {
			// The encrypted database row still serves reads.
			log.Warn().Err(err).
				Str("userId", userID).
				Str("exchange", exchange).
				Msg("vault write failed, database ciphertext remains authoritative")
		}
	}
	return nil
}

// Get returns decrypted credentials. Vault is tried first when enabled;
// the database ciphertext serves as fallback.
func (s *Service) Get(ctx context.Context, userID, exchange string) (market.Credentials, error) {
	if s.vault != nil {
		creds, err := s.vaultRead(ctx, userID, exchange)
		if err == nil && creds.HasKeys() {
			return creds, nil
		}
		if err != nil {
			log.Warn().Err(err).
				Str("userId", userID).
				Str("exchange", exchange).
				Msg("vault read failed, falling back to database")
		}
	}

	row, err := s.repo.GetCredential(ctx, userID, exchange)
	if err != nil {
		return market.Credentials{}, err
	}

	creds := market.Credentials{}
	if creds.APIKey, err = s.decrypt(row.APIKeyEnc); err != nil {
		return market.Credentials{}, fmt.Errorf("decrypting api key: %w", err)
	}
	if creds.APISecret, err = s.decrypt(row.APISecretEnc); err != nil {
		return market.Credentials{}, fmt.Errorf("decrypting api secret: %w", err)
	}
	if len(row.PassphraseEnc) > 0 {
		if creds.Passphrase, err = s.decrypt(row.PassphraseEnc); err != nil {
			return market.Credentials{}, fmt.Errorf("decrypting passphrase: %w", err)
		}
	}
	if len(row.MemoEnc) > 0 {
		if creds.Memo, err = s.decrypt(row.MemoEnc); err != nil {
			return market.Credentials{}, fmt.Errorf("decrypting memo: %w", err)
		}
	}
	return creds, nil
}

// List returns presence-only credential rows: exchange, connected flag and
// timestamps, never key material.
func (s *Service) List(ctx context.Context, userID string) ([]*database.Credential, error) {
	return s.repo.ListCredentialSummaries(ctx, userID)
}

// Delete removes stored credentials from the database and Vault
func (s *Service) Delete(ctx context.Context, userID, exchange string) error {
	if err := s.repo.DeleteCredential(ctx, userID, exchange); err != nil {
		return err
	}
	if s.vault != nil {
		path := s.vaultPath(userID, exchange)
		if _, err := s.vault.Logical().DeleteWithContext(ctx, path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("vault delete failed")
		}
	}
	return nil
}

// MarkConnected records the outcome of a connection test
func (s *Service) MarkConnected(ctx context.Context, userID, exchange string, connected bool) error {
	return s.repo.SetCredentialConnected(ctx, userID, exchange, connected)
}

func (s *Service) encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

func (s *Service) decrypt(data []byte) (string, error) {
	if len(data) < s.aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (s *Service) vaultPath(userID, exchange string) string {
	return fmt.Sprintf("%s/data/trading/%s/%s", s.cfg.MountPath, userID, exchange)
}

func (s *Service) vaultWrite(ctx context.Context, userID, exchange string, creds market.Credentials) error {
	_, err := s.vault.Logical().WriteWithContext(ctx, s.vaultPath(userID, exchange), map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"api_secret": creds.APISecret,
			"passphrase": creds.Passphrase,
			"memo":       creds.Memo,
		},
	})
	return err
}

func (s *Service) vaultRead(ctx context.Context, userID, exchange string) (market.Credentials, error) {
	secret, err := s.vault.Logical().ReadWithContext(ctx, s.vaultPath(userID, exchange))
	if err != nil {
		return market.Credentials{}, err
	}
	if secret == nil || secret.Data == nil {
		return market.Credentials{}, fmt.Errorf("no vault secret")
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return market.Credentials{}, fmt.Errorf("unexpected vault secret shape")
	}
	str := func(key string) string {
		v, _ := data[key].(string)
		return v
	}
	return market.Credentials{
		APIKey:     str("api_key"),
		APISecret:  str("api_secret"),
		Passphrase: str("passphrase"),
		Memo:       str("memo"),
	}, nil
}

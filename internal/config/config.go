package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alpenlabs/bridged/common"
	"github.com/alpenlabs/bridged/internal/core/application"
	"github.com/alpenlabs/bridged/internal/core/domain"
	"github.com/alpenlabs/bridged/internal/core/ports"
	"github.com/alpenlabs/bridged/internal/infrastructure/chain-source/esplora"
	"github.com/alpenlabs/bridged/internal/infrastructure/db"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/urfave/cli/v2"
)

var supportedDbs = supportedType{
	"badger": {},
}

type Config struct {
	Datadir  string
	LogLevel int
	DbType   string
	DbDir    string

	EsploraURL   string
	PollInterval int64
	StartHeight  uint64

	Denomination       uint64
	OperatorFee        uint64
	AssignmentDuration uint64
	Magic              string
	DepositVout        uint32
	DescriptorLen      int
	OperatorPubkeys    []string

	repo       ports.RepoManager
	chain      ports.ChainSource
	state      *domain.BridgeState
	svc        application.Service
	magicBytes []byte
	pubkeys    []*btcec.PublicKey
}

func (c *Config) String() string {
	buf, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(buf)
}

var (
	defaultDatadir            = appDataDir("bridged")
	defaultLogLevel           = 4
	defaultDbType             = "badger"
	defaultEsploraURL         = "https://blockstream.info/api"
	defaultPollInterval       = 10 // seconds
	defaultDenomination       = uint64(1_000_000_000)
	defaultOperatorFee        = uint64(50_000)
	defaultAssignmentDuration = uint64(144) // ~1 day of blocks
	defaultMagic              = "616c7064"
	defaultDepositVout        = 0
	defaultDescriptorLen      = 36
)

// env returns a list of strings prefixed with `BRIDGED_`.
// This is used as a syntax sugar for defining env vars.
func env(values ...string) []string {
	envs := make([]string, len(values))
	for i, value := range values {
		envs[i] = fmt.Sprintf("BRIDGED_%s", value)
	}
	return envs
}

var (
	Datadir = &cli.StringFlag{
		Usage: "Directory to store data",
		Name:  "datadir", EnvVars: env("DATADIR"),
		Value: defaultDatadir,
	}

	LogLevel = &cli.IntFlag{
		Usage: "Logging level (0-6, where 6 is trace)",
		Name:  "log-level", EnvVars: env("LOG_LEVEL"),
		Value: defaultLogLevel,
	}

	DbType = &cli.StringFlag{
		Usage: "Database type (badger)",
		Name:  "db-type", EnvVars: env("DB_TYPE"),
		Value: defaultDbType,
	}

	EsploraURL = &cli.StringFlag{
		Usage: "Esplora API URL",
		Name:  "esplora-url", EnvVars: env("ESPLORA_URL"),
		Value: defaultEsploraURL,
	}

	PollInterval = &cli.Int64Flag{
		Usage: "Block poll interval in seconds",
		Name:  "poll-interval", EnvVars: env("POLL_INTERVAL"),
		Value: int64(defaultPollInterval),
	}

	StartHeight = &cli.Uint64Flag{
		Usage: "Skip blocks up to and including this height on first start",
		Name:  "start-height", EnvVars: env("START_HEIGHT"),
	}

	Denomination = &cli.Uint64Flag{
		Usage: "Exact amount of every deposit, in satoshis",
		Name:  "denomination", EnvVars: env("DENOMINATION"),
		Value: defaultDenomination,
	}

	OperatorFee = &cli.Uint64Flag{
		Usage: "Fee credited to the assigned operator, in satoshis",
		Name:  "operator-fee", EnvVars: env("OPERATOR_FEE"),
		Value: defaultOperatorFee,
	}

	AssignmentDuration = &cli.Uint64Flag{
		Usage: "Withdrawal assignment validity in L1 blocks",
		Name:  "assignment-duration", EnvVars: env("ASSIGNMENT_DURATION"),
		Value: defaultAssignmentDuration,
	}

	Magic = &cli.StringFlag{
		Usage: "4-byte tag magic, hex encoded",
		Name:  "magic", EnvVars: env("MAGIC"),
		Value: defaultMagic,
	}

	DepositVout = &cli.UintFlag{
		Usage: "Fixed output index of the deposit output",
		Name:  "deposit-vout", EnvVars: env("DEPOSIT_VOUT"),
		Value: uint(defaultDepositVout),
	}

	DescriptorLen = &cli.IntFlag{
		Usage: "Fixed encoded length of the deposit destination descriptor",
		Name:  "descriptor-len", EnvVars: env("DESCRIPTOR_LEN"),
		Value: defaultDescriptorLen,
	}

	OperatorPubkeys = &cli.StringSliceFlag{
		Usage: "Ordered federation operator pubkeys, hex compressed",
		Name:  "operator-pubkeys", EnvVars: env("OPERATOR_PUBKEYS"),
		Required: true,
	}
)

func LoadConfig(c *cli.Context) (*Config, error) {
	if err := initDatadir(c.String(Datadir.Name)); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %s", err)
	}

	return &Config{
		Datadir:            c.String(Datadir.Name),
		LogLevel:           c.Int(LogLevel.Name),
		DbType:             c.String(DbType.Name),
		DbDir:              filepath.Join(c.String(Datadir.Name), "db"),
		EsploraURL:         c.String(EsploraURL.Name),
		PollInterval:       c.Int64(PollInterval.Name),
		StartHeight:        c.Uint64(StartHeight.Name),
		Denomination:       c.Uint64(Denomination.Name),
		OperatorFee:        c.Uint64(OperatorFee.Name),
		AssignmentDuration: c.Uint64(AssignmentDuration.Name),
		Magic:              c.String(Magic.Name),
		DepositVout:        uint32(c.Uint(DepositVout.Name)),
		DescriptorLen:      c.Int(DescriptorLen.Name),
		OperatorPubkeys:    c.StringSlice(OperatorPubkeys.Name),
	}, nil
}

func (c *Config) Validate() error {
	if _, ok := supportedDbs[c.DbType]; !ok {
		return fmt.Errorf("unsupported db type: %s", c.DbType)
	}
	if c.Denomination == 0 {
		return fmt.Errorf("denomination must be positive")
	}
	if c.OperatorFee >= c.Denomination {
		return fmt.Errorf(
			"operator fee %d must be lower than denomination %d",
			c.OperatorFee, c.Denomination,
		)
	}
	if c.AssignmentDuration == 0 {
		return fmt.Errorf("assignment duration must be positive")
	}

	magic, err := hex.DecodeString(c.Magic)
	if err != nil || len(magic) != common.MagicLen {
		return fmt.Errorf("magic must be %d bytes, hex encoded", common.MagicLen)
	}
	c.magicBytes = magic

	if len(c.OperatorPubkeys) == 0 {
		return fmt.Errorf("missing operator pubkeys")
	}
	pubkeys := make([]*btcec.PublicKey, 0, len(c.OperatorPubkeys))
	for i, pk := range c.OperatorPubkeys {
		buf, err := hex.DecodeString(pk)
		if err != nil {
			return fmt.Errorf("invalid operator pubkey #%d: %s", i, err)
		}
		pubkey, err := btcec.ParsePubKey(buf)
		if err != nil {
			return fmt.Errorf("invalid operator pubkey #%d: %s", i, err)
		}
		pubkeys = append(pubkeys, pubkey)
	}
	c.pubkeys = pubkeys

	if c.DescriptorLen < 2 || c.DescriptorLen > 4+common.MaxSubjectLen {
		return fmt.Errorf("invalid descriptor length: %d", c.DescriptorLen)
	}

	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) RepoManager() (ports.RepoManager, error) {
	if c.repo == nil {
		if err := c.repoManager(); err != nil {
			return nil, err
		}
	}
	return c.repo, nil
}

func (c *Config) repoManager() error {
	svc, err := db.NewService(db.ServiceConfig{
		DbType:   c.DbType,
		DbConfig: []interface{}{c.DbDir, nil},
	})
	if err != nil {
		return err
	}
	c.repo = svc
	return nil
}

func (c *Config) chainSource() error {
	opts := []esplora.Option{
		esplora.WithPollInterval(time.Duration(c.PollInterval) * time.Second),
	}
	if c.StartHeight > 0 {
		opts = append(opts, esplora.WithStartHeight(c.StartHeight))
	}

	svc, err := esplora.NewService(c.EsploraURL, opts...)
	if err != nil {
		return err
	}
	c.chain = svc
	return nil
}

func (c *Config) appService() error {
	if c.repo == nil {
		if err := c.repoManager(); err != nil {
			return err
		}
	}
	if c.chain == nil {
		if err := c.chainSource(); err != nil {
			return err
		}
	}
	if c.state == nil {
		state, err := domain.NewBridgeState(c.pubkeys, domain.Params{
			Denomination:       c.Denomination,
			OperatorFee:        c.OperatorFee,
			AssignmentDuration: c.AssignmentDuration,
		})
		if err != nil {
			return err
		}
		c.state = state
	}

	svc, err := application.NewService(
		c.state, c.repo, c.chain, c.magicBytes, c.DepositVout, c.DescriptorLen,
	)
	if err != nil {
		return err
	}
	c.svc = svc
	return nil
}

type supportedType map[string]struct{}

func initDatadir(datadir string) error {
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func appDataDir(appName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/traysentinel/custodyledger/internal/authz"
	"github.com/traysentinel/custodyledger/internal/cipher"
	"github.com/traysentinel/custodyledger/internal/config"
	"github.com/traysentinel/custodyledger/internal/evidence"
	"github.com/traysentinel/custodyledger/internal/keys"
	"github.com/traysentinel/custodyledger/internal/ledger"
	"github.com/traysentinel/custodyledger/internal/service"
)

type multiStringFlag []string

func (m *multiStringFlag) String() string {
	if m == nil {
		return ""
	}
	return strings.Join(*m, ",")
}

func (m *multiStringFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := config.Default()
	var legalBasis multiStringFlag

	cfg := defaults
	fs := flag.NewFlagSet("custodyd", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "data directory (ledger, metadata db, keys); evidence_store/ is created as its sibling")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.StringVar(&cfg.Jurisdiction, "jurisdiction", defaults.Jurisdiction, "jurisdiction string stamped on court reports")
	fs.Var(&legalBasis, "legal-basis", "legal basis string stamped on court reports (repeatable)")
	fs.BoolVar(&cfg.Encrypt, "encrypt", defaults.Encrypt, "envelope-encrypt evidence payloads at rest")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")

	intakeCase := fs.String("intake-case", "", "demo: case_id for an intake")
	intakeFile := fs.String("intake-file", "", "demo: path to a payload file to intake")
	intakeUser := fs.String("intake-user", "officer1", "demo: actor user_id for the intake")
	intakeOrg := fs.String("intake-org", "KPS", "demo: actor org_id for the intake")
	intakeDesc := fs.String("intake-desc", "", "demo: evidence description")
	intakeMethod := fs.String("intake-method", "dd", "demo: acquisition method")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(legalBasis) > 0 {
		cfg.LegalBasis = legalBasis
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := config.Validate(cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		_, _ = fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
		return 2
	}

	if err := printConfig(stdout, cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "config encode failed: %v\n", err)
		return 1
	}
	if *dryRun {
		return 0
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(level).With().Timestamp().Logger()

	svc, err := wireService(cfg, log)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "wiring failed: %v\n", err)
		return 2
	}

	health, err := svc.Health()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "health check failed: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "ledger: chain_valid=%v reason=%s\n", health.ChainValid, health.ChainReason)

	if *intakeFile != "" {
		if *intakeCase == "" {
			_, _ = fmt.Fprintln(stderr, "-intake-case is required with -intake-file")
			return 2
		}
		payload, err := os.ReadFile(*intakeFile) // #nosec G304 -- operator-supplied CLI path
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "read intake file failed: %v\n", err)
			return 2
		}
		principal := authz.Principal{UserID: *intakeUser, Role: authz.FieldOfficer, OrgID: *intakeOrg}
		ev, err := svc.Intake(principal, *intakeCase, *intakeDesc, "", *intakeMethod, baseName(*intakeFile), payload)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "intake failed: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "intake: evidence_id=%s sha256=%s\n", ev.EvidenceID, ev.SHA256)
	}

	return 0
}

func wireService(cfg config.Config, log zerolog.Logger) (*service.Service, error) {
	store, err := evidence.Open(config.EvidenceDBPath(cfg.DataDir), config.EvidenceStoreDir(cfg.DataDir))
	if err != nil {
		return nil, fmt.Errorf("open evidence store: %w", err)
	}
	signer, err := keys.NewFileSigner(config.KeysDir(cfg.DataDir))
	if err != nil {
		return nil, fmt.Errorf("open key manager: %w", err)
	}
	l, err := ledger.Open(config.LedgerPath(cfg.DataDir), signer, log)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	var c *cipher.Cipher
	if cfg.Encrypt {
		c, err = cipher.Load(config.CipherKeyPath(cfg.DataDir))
		if err != nil {
			return nil, fmt.Errorf("load evidence cipher: %w", err)
		}
	}

	return service.New(store, l, signer, c, cfg.Jurisdiction, cfg.LegalBasis), nil
}

func printConfig(w io.Writer, cfg config.Config) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

// Package spool renders the scripts and command lines that drive an external
// bulk export tool.
package spool

import (
	"bytes"
	_ "embed"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"text/template"

	"github.com/block/spooler/pkg/query"
)

// Tool renders everything needed to run one bulk export.
type Tool interface {
	// Script returns the tool script that spools the output of stmt to spoolPath.
	Script(spoolPath, stmt string) (string, error)
	// CommandFile returns a shell script that reruns the export by hand.
	CommandFile(scriptPath string) string
	// Command returns the argv that runs scriptPath.
	Command(scriptPath string) []string
	// Env returns the variables added to the process environment.
	Env() []string
}

const (
	DefaultNLSLang   = "SWEDISH_SWEDEN.WE8ISO8859P1"
	DefaultArraySize = 5000
	defaultLong      = 32767
	defaultBinary    = "sqlplus"
	defaultPort      = 1521
)

//go:embed sqlplus.sql.tmpl
var sqlplusScript string

var sqlplusTemplate = template.Must(template.New("sqlplus").Parse(sqlplusScript))

// SQLPlusConfig holds the connection and session settings for sqlplus.
type SQLPlusConfig struct {
	// Binary is the executable to run. Defaults to sqlplus on PATH.
	Binary   string
	User     string
	Password string
	Host     string
	Port     int
	Service  string
	// SID is used in place of Service for instances without a service name.
	SID string
	// TNSAlias replaces host, port and service when set.
	TNSAlias  string
	NLSLang   string
	ArraySize int
}

// SQLPlus drives Oracle's sqlplus in spool mode.
type SQLPlus struct {
	cfg SQLPlusConfig
}

var _ Tool = (*SQLPlus)(nil)

// NewSQLPlus validates that every value concatenated into command text is
// safe before any script is rendered.
func NewSQLPlus(cfg SQLPlusConfig) (*SQLPlus, error) {
	if cfg.Binary == "" {
		cfg.Binary = defaultBinary
	}
	if cfg.NLSLang == "" {
		cfg.NLSLang = DefaultNLSLang
	}
	if cfg.ArraySize <= 0 {
		cfg.ArraySize = DefaultArraySize
	}
	if cfg.TNSAlias == "" && (cfg.Host == "" || (cfg.Service == "" && cfg.SID == "")) {
		return nil, fmt.Errorf("sqlplus needs either a TNS alias or host and service or SID")
	}
	for field, v := range map[string]string{
		"user":      cfg.User,
		"password":  cfg.Password,
		"host":      cfg.Host,
		"service":   cfg.Service,
		"sid":       cfg.SID,
		"tns alias": cfg.TNSAlias,
		"nls_lang":  cfg.NLSLang,
	} {
		if err := query.CheckCredential(field, v); err != nil {
			return nil, err
		}
	}

	return &SQLPlus{cfg: cfg}, nil
}

func (s *SQLPlus) Script(spoolPath, stmt string) (string, error) {
	if err := query.CheckCredential("spool path", spoolPath); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err := sqlplusTemplate.Execute(&buf, map[string]any{
		"ArraySize": s.cfg.ArraySize,
		"Long":      defaultLong,
		"SpoolPath": spoolPath,
		"Statement": stmt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render sqlplus script: %w", err)
	}

	return buf.String(), nil
}

// CommandFile quotes every argument so the shell passes the logon through
// untouched.
func (s *SQLPlus) CommandFile(scriptPath string) string {
	argv := s.Command(scriptPath)
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}

	return "export NLS_LANG=" + shellQuote(s.cfg.NLSLang) + "\n" + strings.Join(quoted, " ") + "\n"
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (s *SQLPlus) Command(scriptPath string) []string {
	return []string{s.cfg.Binary, s.logon(), "@" + scriptPath}
}

func (s *SQLPlus) Env() []string {
	return []string{"NLS_LANG=" + s.cfg.NLSLang}
}

// Available reports whether the binary can be found.
func (s *SQLPlus) Available() bool {
	_, err := exec.LookPath(s.cfg.Binary)
	return err == nil
}

func (s *SQLPlus) logon() string {
	var target string
	switch {
	case s.cfg.TNSAlias != "":
		target = s.cfg.TNSAlias
	case s.cfg.SID != "":
		port := s.cfg.Port
		if port <= 0 {
			port = defaultPort
		}
		target = fmt.Sprintf("(DESCRIPTION=(ADDRESS=(PROTOCOL=TCP)(HOST=%s)(PORT=%d))(CONNECT_DATA=(SID=%s)))",
			s.cfg.Host, port, s.cfg.SID)
	default:
		target = "//" + s.cfg.Host
		if s.cfg.Port > 0 {
			target += ":" + strconv.Itoa(s.cfg.Port)
		}
		target += "/" + s.cfg.Service
	}

	return s.cfg.User + "/" + s.cfg.Password + "@" + target
}

// Redact masks the password in argv for logging.
func Redact(argv []string, password string) []string {
	if password == "" {
		return argv
	}
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = strings.ReplaceAll(a, password, "****")
	}

	return out
}

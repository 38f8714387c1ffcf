package health

import (
	"os"
	"os/exec"
)

// Status is the /health body. Checks maps each probe to "ok" or its error.
type Status struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks"`
}

// Service probes what a run needs before it can start.
type Service struct {
	ConfigPath string
	Command    []string
	SchemasDir string

	lookPath func(string) (string, error)
}

// NewService constructs a new health service.
func NewService(configPath string, command []string, schemasDir string) *Service {
	return &Service{ConfigPath: configPath, Command: command, SchemasDir: schemasDir}
}

// Status runs every probe. Missing schemas only degrade lookups, so that
// probe never flips OK.
func (s *Service) Status() Status {
	st := Status{OK: true, Checks: map[string]string{}}
	record := func(name string, err error, critical bool) {
		if err == nil {
			st.Checks[name] = "ok"
			return
		}
		st.Checks[name] = err.Error()
		if critical {
			st.OK = false
		}
	}

	_, err := os.Stat(s.ConfigPath)
	record("config", err, true)
	record("etl_command", s.checkCommand(), true)
	_, err = os.Stat(s.SchemasDir)
	record("schemas", err, false)
	return st
}

func (s *Service) checkCommand() error {
	if len(s.Command) == 0 {
		return exec.ErrNotFound
	}
	lookPath := s.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	_, err := lookPath(s.Command[0])
	return err
}

// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"fmt"
	"os"

	"github.com/bluenviron/remuxer/internal/conf/env"
	"github.com/bluenviron/remuxer/internal/conf/yamlwrapper"
	"github.com/bluenviron/remuxer/internal/logger"
)

// Conf is a configuration.
type Conf struct {
	// general
	LogLevel             LogLevel        `json:"logLevel"`
	LogDestinations      LogDestinations `json:"logDestinations"`
	LogStructured        bool            `json:"logStructured"`
	LogFile              string          `json:"logFile"`
	Progress             bool            `json:"progress"`
	RelocationBufferSize StringSize      `json:"relocationBufferSize"`
}

func (conf *Conf) setDefaults() {
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{logger.DestinationStderr}
	conf.LogStructured = false
	conf.LogFile = "remuxer.log"
	conf.Progress = true
	conf.RelocationBufferSize = 4 * 1024 * 1024
}

// Load loads a Conf.
// The configuration file is optional: when it doesn't exist,
// defaults and environment variables are used.
func Load(fpath string) (*Conf, bool, error) {
	conf := &Conf{}

	found, err := conf.loadFromFile(fpath)
	if err != nil {
		return nil, false, err
	}

	err = env.Load("REMUXER", conf)
	if err != nil {
		return nil, false, err
	}

	err = conf.Validate()
	if err != nil {
		return nil, false, err
	}

	return conf, found, nil
}

func (conf *Conf) loadFromFile(fpath string) (bool, error) {
	conf.setDefaults()

	if fpath == "" {
		return false, nil
	}

	byts, err := os.ReadFile(fpath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	err = yamlwrapper.Unmarshal(byts, conf)
	if err != nil {
		return false, err
	}

	return true, nil
}

// Validate checks the configuration for errors.
func (conf *Conf) Validate() error {
	if len(conf.LogDestinations) == 0 {
		return fmt.Errorf("at least one log destination must be provided")
	}

	for _, dest := range conf.LogDestinations {
		if dest == logger.DestinationFile && conf.LogFile == "" {
			return fmt.Errorf("'logFile' must be provided when logging to a file")
		}
	}

	if conf.RelocationBufferSize < 4096 {
		return fmt.Errorf("'relocationBufferSize' must be at least 4KB")
	}
	if conf.RelocationBufferSize > 1024*1024*1024 {
		return fmt.Errorf("'relocationBufferSize' must be at most 1GB")
	}

	return nil
}

// Package core contains the main struct of the software.
package core

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/bluenviron/remuxer/internal/conf"
	"github.com/bluenviron/remuxer/internal/container/mp4"
	"github.com/bluenviron/remuxer/internal/logger"
	"github.com/bluenviron/remuxer/internal/remuxer"
)

var version = "v0.0.0"

const usage = "Usage: remuxer -i input1 [-i input2 -i input3 ...] -o output\n"

const trackOptionsHelp = `How to use track options:
    -i input?[track_number1]:[track_option1],[track_option2]?[track_number2]:...
For example:
    remuxer -i input1 -i input2?2:alternate-group=1?3:language=jpn,alternate-group=1 -o output
Available track options are:
    alternate-group
    language
`

// minimum amount of arguments (-i input -o output).
const minArgs = 4

type cli struct {
	Input   []string `short:"i" sep:"none" placeholder:"PATH" help:"input file, optionally followed by track options."`
	Output  []string `short:"o" sep:"none" placeholder:"PATH" help:"output file."`
	Conf    string   `default:"remuxer.yml" placeholder:"PATH" help:"path to a config file."`
	Version bool     `help:"print version."`
}

// Core is an instance of the remuxer.
type Core struct {
	Args   []string
	Stdout io.Writer
	Stderr io.Writer

	conf   *conf.Conf
	logger *logger.Logger
}

// Run creates a Core that uses the standard streams, runs it and returns the exit code.
func Run(args []string) int {
	c := &Core{
		Args:   args,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	return c.Run()
}

// Log is the main logging function.
func (c *Core) Log(level logger.Level, format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Log(level, format, args...)
	} else if level >= logger.Error {
		fmt.Fprintf(c.Stderr, "ERR: "+format+"\n", args...)
	}
}

// Run runs Core and returns the exit code.
func (c *Core) Run() int {
	if len(c.Args) < minArgs {
		fmt.Fprint(c.Stderr, usage+trackOptionsHelp)
		return -1
	}

	var args cli
	helpPrinted := false

	parser, err := kong.New(&args,
		kong.Name("remuxer"),
		kong.Description("remuxer "+version+"\n\n"+usage),
		kong.Writers(c.Stdout, c.Stderr),
		kong.Exit(func(int) {
			helpPrinted = true
		}),
		kong.Help(func(options kong.HelpOptions, ctx *kong.Context) error {
			err := kong.DefaultHelpPrinter(options, ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(ctx.Stdout, "\n"+trackOptionsHelp)
			return err
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(c.Args)
	if helpPrinted {
		return 0
	}
	if err != nil {
		c.Log(logger.Error, "%s", err)
		return -1
	}

	if args.Version {
		fmt.Fprintln(c.Stdout, version)
		return 0
	}

	if len(args.Output) > 1 {
		c.Log(logger.Error, "output file is specified more than once")
		return -1
	}

	var confFound bool
	c.conf, confFound, err = conf.Load(args.Conf)
	if err != nil {
		c.Log(logger.Error, "%s", err)
		return -1
	}

	c.logger = &logger.Logger{
		Level:        logger.Level(c.conf.LogLevel),
		Destinations: c.conf.LogDestinations,
		Structured:   c.conf.LogStructured,
		File:         c.conf.LogFile,
		Stderr:       c.Stderr,
	}
	err = c.logger.Initialize()
	if err != nil {
		c.logger = nil
		c.Log(logger.Error, "%s", err)
		return -1
	}
	defer c.logger.Close()

	c.Log(logger.Debug, "remuxer %s", version)

	if confFound {
		c.Log(logger.Debug, "configuration loaded from %s", args.Conf)
	}

	var progress io.Writer
	if c.conf.Progress {
		progress = c.Stderr
	}

	var output string
	if len(args.Output) != 0 {
		output = args.Output[0]
	}

	r := &remuxer.Remuxer{
		Inputs: args.Input,
		Output: output,
		Opener: &mp4.Opener{
			RelocationBufferSize: int(c.conf.RelocationBufferSize),
			Parent:               c,
		},
		Progress: progress,
		Parent:   c,
	}

	err = r.Run()
	if err != nil {
		c.Log(logger.Error, "%s", err)
		return -1
	}

	return 0
}

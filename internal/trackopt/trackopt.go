// Package trackopt contains the parser of per-track options.
//
// Track options are appended to an input path:
//
//	input.mp4?2:alternate-group=1?3:language=jpn,alternate-group=1
package trackopt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/remuxer/internal/container"
)

// option keys.
const (
	KeyAlternateGroup = "alternate-group"
	KeyLanguage       = "language"
)

// Option contains the overrides of a track.
type Option struct {
	AlternateGroup int16
	Language       uint16
}

// Defaults returns the Option that leaves a track unchanged.
func Defaults(track container.TrackParams, media container.MediaParams) Option {
	return Option{
		AlternateGroup: track.AlternateGroup,
		Language:       media.Language,
	}
}

// Input is an input argument split into its path and its track clauses.
type Input struct {
	Path string

	// NumDelimiters is the number of clause delimiters found in the argument.
	NumDelimiters int

	// Clauses are the non-empty track clauses.
	Clauses []string
}

// Split splits an input argument.
func Split(raw string) Input {
	path, rest, _ := strings.Cut(raw, "?")

	in := Input{
		Path:          path,
		NumDelimiters: strings.Count(raw, "?"),
	}

	for _, clause := range strings.Split(rest, "?") {
		if clause != "" {
			in.Clauses = append(in.Clauses, clause)
		}
	}

	return in
}

// ParseAll parses all clauses of an input into opts, which must contain
// one entry per track, already filled with defaults.
func ParseAll(in Input, opts []Option) error {
	if in.NumDelimiters > len(opts) {
		return fmt.Errorf("more track options specified than the actual number of the tracks (%d)", len(opts))
	}

	for _, clause := range in.Clauses {
		err := Parse(clause, opts)
		if err != nil {
			return err
		}
	}

	return nil
}

// Parse parses a single clause into opts.
func Parse(clause string, opts []Option) error {
	colons := strings.Count(clause, ":")
	if colons == 0 || strings.HasPrefix(clause, ":") {
		return fmt.Errorf("track number is not specified in %s", clause)
	}
	if colons > 1 {
		return fmt.Errorf("multiple colons inside one track option in %s", clause)
	}

	trackToken, list, _ := strings.Cut(clause, ":")

	trackNumber, err := strconv.ParseUint(trackToken, 10, 32)
	if err != nil || trackNumber == 0 {
		return fmt.Errorf("%s is an invalid track number", trackToken)
	}
	if trackNumber > uint64(len(opts)) {
		return fmt.Errorf("%d is an invalid track number", trackNumber)
	}

	opt := &opts[trackNumber-1]

	for _, item := range strings.Split(list, ",") {
		if item == "" {
			continue
		}

		err = parseOption(item, opt)
		if err != nil {
			return err
		}
	}

	return nil
}

func parseOption(item string, opt *Option) error {
	if strings.Count(item, "=") > 1 {
		return fmt.Errorf("multiple equal signs inside one track option in %s", item)
	}

	key, value, ok := strings.Cut(item, "=")
	if !ok {
		return fmt.Errorf("unknown track option %s", item)
	}

	switch key {
	case KeyAlternateGroup:
		v, err := strconv.ParseInt(value, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid alternate group '%s'", value)
		}
		opt.AlternateGroup = int16(v)

	case KeyLanguage:
		v, err := container.PackLanguage(value)
		if err != nil {
			return err
		}
		opt.Language = v

	default:
		return fmt.Errorf("unknown track option %s", item)
	}

	return nil
}

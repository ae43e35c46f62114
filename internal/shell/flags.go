package shell

import (
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/spf13/pflag"
)

// NewFlags returns a silent flag set for a simulated command. Parse errors
// are reported by ParseFlags in coreutils wording.
func NewFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false
	return fs
}

var (
	reUnknownShort = regexp.MustCompile(`unknown shorthand flag: '(.)'`)
	reUnknownLong  = regexp.MustCompile(`unknown flag: (--\S+)`)
	reMissingShort = regexp.MustCompile(`flag needs an argument: '(.)'`)
	reMissingLong  = regexp.MustCompile(`flag needs an argument: (--\S+)`)
)

// ParseFlags parses args[1:] and returns the positional arguments. On error
// it prints the usage error and reports false.
func (s *Session) ParseFlags(fs *pflag.FlagSet, args []string) ([]string, bool) {
	if err := fs.Parse(args[1:]); err != nil {
		name := fs.Name()
		if errors.Is(err, pflag.ErrHelp) {
			s.Printf("Usage: %s [OPTION]...", name)
			s.Print(strings.TrimRight(fs.FlagUsages(), "\n"))
			return nil, false
		}
		msg := err.Error()
		switch {
		case reUnknownShort.MatchString(msg):
			msg = "invalid option -- '" + reUnknownShort.FindStringSubmatch(msg)[1] + "'"
		case reUnknownLong.MatchString(msg):
			msg = "unrecognized option '" + reUnknownLong.FindStringSubmatch(msg)[1] + "'"
		case reMissingShort.MatchString(msg):
			msg = "option requires an argument -- '" + reMissingShort.FindStringSubmatch(msg)[1] + "'"
		case reMissingLong.MatchString(msg):
			msg = "option '" + reMissingLong.FindStringSubmatch(msg)[1] + "' requires an argument"
		}
		s.Errorf("%s: %s", name, msg)
		s.Errorf("Try '%s --help' for more information.", name)
		return nil, false
	}
	return fs.Args(), true
}

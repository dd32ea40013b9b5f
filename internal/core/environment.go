package core

import "strings"

// Environment selects the log format and level of the process.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

var environmentAliases = map[string]Environment{
	"development": Development,
	"dev":         Development,
	"local":       Development,
	"testing":     Testing,
	"test":        Testing,
	"ci":          Testing,
	"production":  Production,
	"prod":        Production,
}

// ParseEnvironment maps ENVIRONMENT values and their aliases; anything else is Development.
func ParseEnvironment(v string) Environment {
	if e, ok := environmentAliases[strings.ToLower(strings.TrimSpace(v))]; ok {
		return e
	}
	return Development
}

func (e Environment) IsProduction() bool { return e == Production }

// Verbose reports whether debug output is wanted.
func (e Environment) Verbose() bool { return e == Development }

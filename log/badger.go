package log

import (
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
)

var _ badger.Logger = &Badger{}

// Badger routes badger log output through zerolog. Badger is chatty at
// info level, so info is downgraded to debug.
type Badger struct {
	L zerolog.Logger
}

func (l *Badger) Errorf(m string, f ...interface{}) {
	l.L.Error().Msgf(strings.TrimSpace(m), f...)
}

func (l *Badger) Warningf(m string, f ...interface{}) {
	l.L.Warn().Msgf(strings.TrimSpace(m), f...)
}

func (l *Badger) Infof(m string, f ...interface{}) {
	l.L.Debug().Msgf(strings.TrimSpace(m), f...)
}

func (l *Badger) Debugf(m string, f ...interface{}) {
	l.L.Debug().Msgf(strings.TrimSpace(m), f...)
}

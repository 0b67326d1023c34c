package utils

import (
	"os"
	"strings"
	"sync/atomic"
)

// PauseFlag is consulted once per loop iteration. While it reports true a
// component neither advances state nor transmits.
type PauseFlag interface {
	Paused() bool
}

const (
	StatePause = "pause"
	StateRun   = "run"
)

// FilePause reads a state file written by the master control. Anything
// other than "pause" means running, and so does a missing file.
type FilePause struct {
	Path string
}

func (p FilePause) Paused() bool {
	if p.Path == "" {
		return false
	}
	b, err := os.ReadFile(p.Path)
	if err != nil {
		return false
	}
	return strings.ToLower(strings.TrimSpace(string(b))) == StatePause
}

// WritePauseState stores "pause" or "run" in path.
func WritePauseState(path string, paused bool) error {
	state := StateRun
	if paused {
		state = StatePause
	}
	return os.WriteFile(path, []byte(state+"\n"), 0644)
}

// ManualPause is an in-process flag.
type ManualPause struct {
	v atomic.Bool
}

func (p *ManualPause) Paused() bool    { return p.v.Load() }
func (p *ManualPause) Set(paused bool) { p.v.Store(paused) }

type neverPaused struct{}

func (neverPaused) Paused() bool { return false }

// NeverPaused is the flag used when none is configured.
var NeverPaused PauseFlag = neverPaused{}

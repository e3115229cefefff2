// Package network wires Intcode machines into amplifier chains.
//
// Each amplifier is a machine running the same image. It first reads its
// phase setting, then an input signal, and emits an output signal that is
// forwarded to the next amplifier.
package network

import (
	"errors"
	"fmt"

	"github.com/fortiblox/intcode/pkg/intcode"
	"go.uber.org/zap"
)

var (
	// ErrNoPhases is returned when a network has no amplifiers.
	ErrNoPhases = errors.New("no phase settings")

	// ErrNoSignal is returned when an amplifier stops without emitting a signal.
	ErrNoSignal = errors.New("amplifier produced no signal")

	// ErrStalled is returned when a feedback loop suspends without progress.
	ErrStalled = errors.New("feedback loop stalled")
)

// Opts configures the machines of a network.
type Opts struct {
	Logger    *zap.Logger
	StepLimit uint64
}

func (o Opts) machine(id int, image []int64) *intcode.Machine {
	return intcode.New(id, image, intcode.Opts{Logger: o.Logger, StepLimit: o.StepLimit})
}

// Chain runs amplifiers in series, feeding 0 to the first. It returns the
// signal emitted by the last amplifier.
func Chain(image []int64, phases []int64, opts Opts) (int64, error) {
	if len(phases) == 0 {
		return 0, ErrNoPhases
	}
	var signal int64
	for i, phase := range phases {
		m := opts.machine(i, image)
		m.PushInputs(phase, signal)
		if _, err := m.Run(); err != nil {
			return 0, fmt.Errorf("amplifier %d: %w", i, err)
		}
		out, ok := m.LastOutput()
		if !ok {
			return 0, fmt.Errorf("%w: amplifier %d", ErrNoSignal, i)
		}
		signal = out
	}
	return signal, nil
}

// Loop runs amplifiers in a feedback loop: the output of the last
// amplifier is routed back to the first. Machines are scheduled round-robin
// until the last one terminates; its final output is returned.
func Loop(image []int64, phases []int64, opts Opts) (int64, error) {
	if len(phases) == 0 {
		return 0, ErrNoPhases
	}
	amps := make([]*intcode.Machine, len(phases))
	for i, phase := range phases {
		amps[i] = opts.machine(i, image)
		amps[i].PushInput(phase)
	}
	amps[0].PushInput(0)

	last := amps[len(amps)-1]
	for !last.HasTerminated() {
		progressed := false
		for i, m := range amps {
			if m.HasTerminated() {
				continue
			}
			before := m.Steps()
			if _, err := m.Run(); err != nil {
				return 0, fmt.Errorf("amplifier %d: %w", i, err)
			}
			if m.Steps() != before {
				progressed = true
			}
			next := amps[(i+1)%len(amps)]
			next.PushInputs(m.DrainOutput()...)
		}
		if !progressed {
			return 0, ErrStalled
		}
	}

	out, ok := last.LastOutput()
	if !ok {
		return 0, fmt.Errorf("%w: amplifier %d", ErrNoSignal, last.ID())
	}
	return out, nil
}

// Best is the highest signal found by MaxSignal and the phase order that
// produced it.
type Best struct {
	Signal int64
	Phases []int64
}

// MaxSignal tries every ordering of phases and returns the one giving the
// highest signal. With feedback set the amplifiers run as a Loop, otherwise
// as a Chain.
func MaxSignal(image []int64, phases []int64, feedback bool, opts Opts) (Best, error) {
	if len(phases) == 0 {
		return Best{}, ErrNoPhases
	}
	run := Chain
	if feedback {
		run = Loop
	}

	var best Best
	found := false
	err := permute(append([]int64(nil), phases...), func(order []int64) error {
		signal, err := run(image, order, opts)
		if err != nil {
			return fmt.Errorf("phases %v: %w", order, err)
		}
		if !found || signal > best.Signal {
			best = Best{Signal: signal, Phases: append([]int64(nil), order...)}
			found = true
		}
		return nil
	})
	if err != nil {
		return Best{}, err
	}
	return best, nil
}

// permute calls fn with every permutation of s using Heap's algorithm.
// s is mutated in place.
func permute(s []int64, fn func([]int64) error) error {
	c := make([]int, len(s))
	if err := fn(s); err != nil {
		return err
	}
	for i := 0; i < len(s); {
		if c[i] < i {
			if i%2 == 0 {
				s[0], s[i] = s[i], s[0]
			} else {
				s[c[i]], s[i] = s[i], s[c[i]]
			}
			if err := fn(s); err != nil {
				return err
			}
			c[i]++
			i = 0
			continue
		}
		c[i] = 0
		i++
	}
	return nil
}

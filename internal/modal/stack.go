// Package modal implements interactive sub-shells. A frame on the stack
// shadows the shell's prompt and line handler until it is popped; popping
// restores exactly the frame underneath.
package modal

import (
	"orasim/internal/logging"
)

// Frame is one installed prompt/handler pair.
type Frame struct {
	Name   string
	Prompt func() string
	Handle func(line string)
	OnExit func()

	// NoHistory keeps submitted lines out of the command history.
	NoHistory bool
	// Masked asks front-ends to hide typed input.
	Masked bool
}

// Stack holds the active frames, innermost last.
type Stack struct {
	frames []*Frame
}

// Push installs f over the current frame.
func (s *Stack) Push(f *Frame) {
	s.frames = append(s.frames, f)
	logging.Modal("enter %s (depth=%d)", f.Name, len(s.frames))
}

// Pop removes the innermost frame and runs its OnExit. It reports false
// when nothing is active.
func (s *Stack) Pop() bool {
	if len(s.frames) == 0 {
		return false
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	logging.Modal("exit %s (depth=%d)", f.Name, len(s.frames))
	if f.OnExit != nil {
		f.OnExit()
	}
	return true
}

// Top returns the innermost frame or nil.
func (s *Stack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Active reports whether any frame is installed.
func (s *Stack) Active() bool { return len(s.frames) > 0 }

// Depth returns the number of frames.
func (s *Stack) Depth() int { return len(s.frames) }

// Names returns frame names, outermost first.
func (s *Stack) Names() []string {
	out := make([]string, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.Name
	}
	return out
}

// Clear drops every frame without running OnExit hooks.
func (s *Stack) Clear() {
	s.frames = nil
}

// Ask pushes a one-shot prompt. The next submitted line is delivered to fn
// after the prompt frame has been popped, so fn may push new frames. Masked
// prompts are kept out of history.
func Ask(s *Stack, prompt string, masked bool, fn func(answer string)) {
	var f *Frame
	f = &Frame{
		Name:      "prompt",
		Prompt:    func() string { return prompt },
		NoHistory: masked,
		Masked:    masked,
		Handle: func(line string) {
			if s.Top() == f {
				s.Pop()
			}
			fn(line)
		},
	}
	s.Push(f)
}

// Collect gathers lines until one equals terminator, then pops itself and
// delivers the lines (terminator excluded).
func Collect(s *Stack, prompt, terminator string, fn func(lines []string)) {
	var lines []string
	var f *Frame
	f = &Frame{
		Name:   "collect",
		Prompt: func() string { return prompt },
		Handle: func(line string) {
			if line == terminator {
				if s.Top() == f {
					s.Pop()
				}
				fn(lines)
				return
			}
			lines = append(lines, line)
		},
	}
	s.Push(f)
}

package runner

import (
	"context"

	"github.com/hupe1980/statemesh/core"
)

// InstructionProvider supplies the instruction template for a turn. The
// returned text is rendered against the session state before dispatch.
type InstructionProvider interface {
	Instruction(ctx context.Context, sess *core.Session) (string, error)
}

// StaticInstruction is a fixed instruction template.
type StaticInstruction string

// Instruction implements InstructionProvider.
func (s StaticInstruction) Instruction(context.Context, *core.Session) (string, error) {
	return string(s), nil
}

// InstructionFunc adapts a function to InstructionProvider.
type InstructionFunc func(ctx context.Context, sess *core.Session) (string, error)

// Instruction implements InstructionProvider.
func (f InstructionFunc) Instruction(ctx context.Context, sess *core.Session) (string, error) {
	return f(ctx, sess)
}

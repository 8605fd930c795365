package tools

import "context"

// TurnContext carries per-turn routing metadata through the context tree.
// The conversation loop sets it once per message; stateful tools (memory,
// cron) read it inside Execute instead of holding mutable per-turn fields.
type TurnContext struct {
	AgentID   string
	Namespace string // agent memory namespace prefix
	ChatID    string
	Channel   string
}

type turnKey struct{}

// WithTurn returns a child context carrying tc.
func WithTurn(ctx context.Context, tc TurnContext) context.Context {
	return context.WithValue(ctx, turnKey{}, tc)
}

// TurnCtx extracts the TurnContext from ctx. Returns a zero value when the
// loop did not set one (direct tool invocation in tests).
func TurnCtx(ctx context.Context) TurnContext {
	tc, _ := ctx.Value(turnKey{}).(TurnContext)
	return tc
}

package filter

import (
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/tcriess/lightspeed-presence/globals"
	"github.com/tcriess/lightspeed-presence/types"
)

// Compile compiles a target filter expression against the filter Env. An
// empty expression compiles to nil, which matches every target.
func Compile(expression string) (*vm.Program, error) {
	if expression == "" {
		return nil, nil
	}
	return expr.Compile(expression, expr.Env(Env{}))
}

// Match runs a compiled filter program against one candidate recipient. A
// nil program matches; a failing or non-boolean result does not.
func Match(prog *vm.Program, user *types.User, notification *types.Notification) bool {
	if prog == nil {
		return true
	}
	env := Env{
		Target: Target{
			User: User{
				Id:         user.Id,
				Nick:       user.Nick,
				Status:     user.Status,
				Tags:       user.Tags,
				LastOnline: user.LastOnline.Unix(),
			},
		},
		Type:    notification.Type,
		Title:   notification.Title,
		Created: notification.Timestamp.Unix(),
	}
	res, err := expr.Run(prog, env)
	if err != nil {
		globals.AppLogger.Error("could not run filter", "error", err)
		return false
	}
	if bRes, ok := res.(bool); ok && bRes {
		return true
	}
	return false
}

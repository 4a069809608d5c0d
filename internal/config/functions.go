package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// evalContext returns the functions and variables available to expressions
// in files under baseDir.
func evalContext(baseDir string) *hcl.EvalContext {
	hostname, _ := os.Hostname()
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"hostname": cty.StringVal(hostname),
			"os":       cty.StringVal(runtime.GOOS),
		},
		Functions: map[string]function.Function{
			"env":       envFunc,
			"file":      fileFunc(baseDir),
			"trimspace": stdlib.TrimSpaceFunc,
			"lower":     stdlib.LowerFunc,
		},
	}
}

// envFunc returns an environment variable, or the optional second argument
// when the variable is unset or empty.
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	VarParam: &function.Parameter{Name: "default", Type: cty.String},
	Type:     function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if len(args) > 2 {
			return cty.NilVal, fmt.Errorf("env takes at most one default, got %d", len(args)-1)
		}
		if v := os.Getenv(args[0].AsString()); v != "" {
			return cty.StringVal(v), nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return cty.StringVal(""), nil
	},
})

// fileFunc reads a file relative to baseDir.
func fileFunc(baseDir string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "path", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			path := args[0].AsString()
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return cty.NilVal, err
			}
			return cty.StringVal(string(data)), nil
		},
	})
}

package tools

import "fmt"

// Result is the unified return type from tool execution. It becomes a
// tool_result content block bound to the originating tool_use id.
type Result struct {
	Content string
	IsError bool
}

func Ok(content string) *Result {
	return &Result{Content: content}
}

func Errorf(format string, args ...any) *Result {
	return &Result{Content: fmt.Sprintf(format, args...), IsError: true}
}

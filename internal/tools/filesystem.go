package tools

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

func (e *Executor) execReadFile(input map[string]any, paramsStr string) *Result {
	path, errResult := stringParam(input, "path")
	if errResult != nil {
		return errResult
	}

	if res := e.caps.CheckFileRead(path); !res.Allowed {
		e.auditor.ToolCallDenied("read_file", paramsStr, res.Reason)
		return Errorf("access denied: %s", res.Reason)
	}
	e.auditor.ToolCallAllowed("read_file", paramsStr)

	data, err := os.ReadFile(path)
	if err != nil {
		return Errorf("failed to read '%s': %v", path, err)
	}
	return Ok(string(data))
}

func (e *Executor) execWriteFile(input map[string]any, paramsStr string) *Result {
	path, errResult := stringParam(input, "path")
	if errResult != nil {
		return errResult
	}
	content, errResult := stringParam(input, "content")
	if errResult != nil {
		return errResult
	}

	if res := e.caps.CheckFileWrite(path); !res.Allowed {
		e.auditor.ToolCallDenied("write_file", paramsStr, res.Reason)
		return Errorf("access denied: %s", res.Reason)
	}
	e.auditor.ToolCallAllowed("write_file", paramsStr)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Errorf("failed to write '%s': %v", path, err)
	}
	return Ok(fmt.Sprintf("wrote %d bytes to '%s'", len(content), path))
}

func (e *Executor) execListDirectory(input map[string]any, paramsStr string) *Result {
	path, errResult := stringParam(input, "path")
	if errResult != nil {
		return errResult
	}

	// Listing is a read capability.
	if res := e.caps.CheckFileRead(path); !res.Allowed {
		e.auditor.ToolCallDenied("list_directory", paramsStr, res.Reason)
		return Errorf("access denied: %s", res.Reason)
	}
	e.auditor.ToolCallAllowed("list_directory", paramsStr)

	entries, err := os.ReadDir(path)
	if err != nil {
		return Errorf("failed to list '%s': %v", path, err)
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		lines = append(lines, name)
	}
	sort.Strings(lines)

	return Ok(strings.Join(lines, "\n"))
}

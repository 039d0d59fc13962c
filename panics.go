package actionqueue

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// RecoverFault converts a recovered panic value into an execution fault.
// The cleaned stack trace and the panic value are attached as metadata.
func RecoverFault(stage string, r any, fields map[string]any) error {
	fullStack := make([]byte, 8096)
	n := runtime.Stack(fullStack, false)
	stack := cleanStackTrace(fullStack[:n])

	meta := map[string]any{
		"stage":      stage,
		"panic":      fmt.Sprintf("%v", r),
		"panic_type": fmt.Sprintf("%T", r),
		"stack":      string(stack),
	}
	for k, v := range fields {
		meta[k] = v
	}

	var source error
	if err, ok := r.(error); ok {
		source = err
	}
	return NewError(ErrExecutionFault, fmt.Sprintf("panic recovered in %s: %v", stage, r), source, meta)
}

// SafeCall runs fn and turns a panic into an execution fault.
func SafeCall(stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = RecoverFault(stage, r, nil)
		}
	}()
	return fn()
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	// we find the index after the panic line
	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// then remove everything before it
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		// panic({0x101fc1100?, 0x14000817248?})
		//         ./go/src/runtime/panic.go:785 +0x124
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}

// GetGoroutineID returns the id of the calling goroutine.
func GetGoroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	idField := strings.Fields(strings.TrimPrefix(string(buf), "goroutine "))[0]
	id, _ := strconv.ParseUint(idField, 10, 64)
	return id
}

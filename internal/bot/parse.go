package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIDArg extracts a numeric task ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("task ID is required")
	}
	field := strings.TrimPrefix(strings.Fields(s)[0], "#")
	id, err := strconv.ParseInt(field, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task ID %q", s)
	}
	return id, nil
}

// ParseCallbackData splits inline button data of the form "action:id".
func ParseCallbackData(data string) (string, int64, error) {
	action, idStr, ok := strings.Cut(data, ":")
	if !ok || action == "" {
		return "", 0, fmt.Errorf("malformed callback data %q", data)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid callback id %q", idStr)
	}
	return action, id, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"scfingest/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized":
			lines = append(lines, "hint: check the username and password; accounts are created with: scfingest user add")
		case "forbidden":
			lines = append(lines, "hint: the account may be disabled or registration is turned off on the server.")
		case "resource_exhausted":
			if apiErr.RetryAfter > 0 {
				lines = append(lines, fmt.Sprintf("hint: too many attempts; retry in %s.", apiErr.RetryAfter))
			} else {
				lines = append(lines, "hint: too many attempts; wait before retrying.")
			}
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify SCFINGEST_API_URL points to a scfingest server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase SCFINGEST_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a scfingest server is running at SCFINGEST_API_URL.",
			"hint: start a local server with: scfingest srv",
			"hint: you can increase SCFINGEST_HTTP_TIMEOUT for slower environments.",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

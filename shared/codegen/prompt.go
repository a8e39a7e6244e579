package codegen

import (
	"fmt"
	"strings"
)

// Delimiter fences user text inside a prompt so it is not read as
// instructions.
const Delimiter = "\n###\n"

func buildStepsPrompt(message, language string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Analyze the following request and determine the necessary steps to accomplish it in %s:", language))
	sb.WriteString(Delimiter)
	sb.WriteString(message)
	sb.WriteString(Delimiter)
	sb.WriteString("Respond only with a numbered list of steps, nothing else.")
	return sb.String()
}

func buildCodePrompt(language string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Generate the %s code according to the previously defined steps.", language))
	sb.WriteString("Take your time to ensure accuracy and completeness.")
	sb.WriteString("Respond only with the generated code, nothing else.")
	return sb.String()
}

// stripFences drops a leading and trailing markdown fence line, if present.
func stripFences(code string) string {
	lines := strings.Split(strings.TrimSpace(code), "\n")
	if len(lines) > 0 && isFence(lines[0]) {
		lines = lines[1:]
	}
	if len(lines) > 0 && isFence(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func isFence(line string) bool {
	return strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~")
}

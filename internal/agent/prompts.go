package agent

import (
	"fmt"
	"strings"
)

const plannerSystemPrompt = `You are a planning assistant. Turn the user's request into a JSON plan of tool calls.

Respond with ONLY a JSON object, no prose, of the shape:
{"goal": "<restate the user's goal>",
 "steps": [
   {"id": "step_1", "description": "...", "tool": "<tool name>", "args": {...}, "requires": []},
   {"id": "compose_answer", "description": "Compose the final answer", "tool": null, "requires": ["step_1"]}
 ]}

Rules:
- Use only the tools listed below. Do not invent tools.
- Every args value must be a concrete literal. Never reference another step's output.
- "requires" lists ids of steps that must run first.
- The last step must always be "compose_answer" with "tool": null.
- If no tool is needed, return only the compose_answer step.`

// buildPlannerPrompt assembles the full planning prompt from the tool
// catalogue, the user request, and (on replans) the failure context.
func buildPlannerPrompt(toolCatalogue string, req PlanRequest) string {
	var b strings.Builder
	b.WriteString(plannerSystemPrompt)
	b.WriteString("\n\nAvailable tools:\n")
	b.WriteString(toolCatalogue)

	if len(req.ForbiddenTools) > 0 {
		b.WriteString("\nForbidden tools (they failed this turn, do NOT call them):\n")
		for _, name := range req.ForbiddenTools {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}

	if req.IsReplan {
		b.WriteString("\nThis is a REPLAN. The previous plan failed.\n")
		if req.FailureDescription != "" {
			fmt.Fprintf(&b, "Failure: %s\n", req.FailureDescription)
		}
		if req.Observations != "" {
			fmt.Fprintf(&b, "Results gathered so far (do not repeat these steps):\n%s\n", req.Observations)
		}
		b.WriteString("Produce a new plan that reaches the goal another way.\n")
	}

	fmt.Fprintf(&b, "\nUser request: %s\n", req.UserInput)
	return b.String()
}

// buildRepairPrompt asks the backend to fix its own malformed plan output.
// The bad output is embedded as an escaped JSON string so broken quoting
// cannot corrupt the repair prompt itself.
func buildRepairPrompt(badOutput string) string {
	return fmt.Sprintf(`Your previous output was not a valid JSON plan.

Previous output (as an escaped string): %q

Return ONLY the corrected JSON object with "goal" and "steps", nothing else.`, badOutput)
}

// buildComposePrompt assembles the final-answer prompt from this turn's
// observations and failure text, plus memory context when permitted.
func buildComposePrompt(userInput, observations, failure, memoryContext string) string {
	var b strings.Builder
	b.WriteString("Write the final answer for the user. Be direct and concise.\n")

	if memoryContext != "" {
		fmt.Fprintf(&b, "\nRelevant conversation memory:\n%s\n", memoryContext)
	}
	if observations != "" {
		fmt.Fprintf(&b, "\nTool results from this request:\n%s\n", observations)
	}
	if failure != "" {
		fmt.Fprintf(&b, "\nA failure occurred while handling this request:\n%s\nExplain this to the user honestly and suggest what they could try instead.\n", failure)
	}

	fmt.Fprintf(&b, "\nUser request: %s\n\nAnswer:", userInput)
	return b.String()
}

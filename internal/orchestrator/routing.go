package orchestrator

import (
	"fmt"
	"sort"
	"strings"
)

// Routing template names.
const (
	TemplateSingle            = "single"
	TemplateDesignReview      = "design_review"
	TemplateDraftReviewRevise = "draft_review_revise"
)

// BuildWorkItems expands a named template into its work-item graph for the
// given goal. Templates are pure and deterministic; they never call the
// text backend. The caller's context map is threaded into the items that
// start from the user's request; follow-up items working purely from
// upstream artifacts receive no raw inputs.
func BuildWorkItems(template, goal string, context map[string]any) ([]WorkItem, error) {
	switch template {
	case TemplateSingle:
		return []WorkItem{
			{ID: "task", Role: RoleGeneralist, Goal: goal, Inputs: context},
		}, nil

	case TemplateDesignReview:
		return []WorkItem{
			{
				ID:     "research",
				Role:   RoleResearcher,
				Goal:   "Extract key requirements and constraints from the following request:\n" + goal,
				Inputs: context,
			},
			{
				ID:        "design",
				Role:      RoleGeneralist,
				Goal:      "Propose an implementation approach for the following request:\n" + goal,
				Inputs:    context,
				DependsOn: []string{"research.output"},
			},
			{
				ID:        "review",
				Role:      RoleReviewer,
				Goal:      "Review the proposed approach for risks, gaps, and a minimal test plan. Original request:\n" + goal,
				Inputs:    context,
				DependsOn: []string{"research.output", "design.output"},
			},
		}, nil

	case TemplateDraftReviewRevise:
		return []WorkItem{
			{
				ID:     "draft",
				Role:   RoleGeneralist,
				Goal:   "Write a draft answering the following request:\n" + goal,
				Inputs: context,
			},
			{
				ID:        "review",
				Role:      RoleReviewer,
				Goal:      "Review the draft written for the following request:\n" + goal,
				DependsOn: []string{"draft.output"},
			},
			{
				ID:        "revise",
				Role:      RoleGeneralist,
				Goal:      "Revise the draft using the review feedback. Original request:\n" + goal,
				DependsOn: []string{"draft.output", "review.output"},
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown routing template %q (known: %s)", template, strings.Join(Templates(), ", "))
	}
}

// Templates enumerates the known template names, sorted.
func Templates() []string {
	names := []string{TemplateSingle, TemplateDesignReview, TemplateDraftReviewRevise}
	sort.Strings(names)
	return names
}

// DescribeTemplate renders a human-readable plan of a template without
// executing it.
func DescribeTemplate(name string) (string, error) {
	items, err := BuildWorkItems(name, "<goal>", nil)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Template %q: %d work item(s)\n", name, len(items))
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s [%s]", i+1, item.ID, item.Role)
		if len(item.DependsOn) > 0 {
			fmt.Fprintf(&b, " (after: %s)", strings.Join(item.DependsOn, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

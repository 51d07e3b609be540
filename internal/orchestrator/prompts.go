package orchestrator

// Role system prefixes. Each RoleAgent prepends its prefix to the work-item
// input so one underlying engine can serve multiple roles.

const generalistPrompt = `You are a generalist agent. Complete the task below directly and thoroughly.
Produce a concrete, self-contained result; do not defer work or ask questions.`

const researcherPrompt = `You are a research agent. Gather the information requested below using read-only means.
Report findings clearly and concisely, citing sources when available.
Never attempt to modify any system.`

const reviewerPrompt = `You are a review agent. Critically evaluate the material provided below.
Point out concrete problems, risks, and gaps; suggest specific improvements.
Be direct. Do not rewrite the material yourself unless asked to.`

// RolePrompt returns the system prefix for a builtin role name, or the
// generalist prefix for anything unrecognized.
func RolePrompt(role string) string {
	switch role {
	case RoleResearcher:
		return researcherPrompt
	case RoleReviewer:
		return reviewerPrompt
	default:
		return generalistPrompt
	}
}

package plan

import "strconv"

// NormalizeStepIDs remaps purely numeric step ids onto a stable prefixed
// scheme ("0" -> "step_1", "1" -> "step_2", ...) and rewrites every requires
// list accordingly. Two plans generated across replans then merge safely via
// their observation maps. Non-numeric ids are left untouched; when a plan
// already carries the prefixed id a numeric id would map to, the remap skips
// forward to the next free name instead of colliding. The input plan is not
// mutated.
func NormalizeStepIDs(p *Plan) *Plan {
	taken := make(map[string]struct{}, len(p.Steps))
	for _, s := range p.Steps {
		if _, err := strconv.Atoi(s.ID); err != nil {
			taken[s.ID] = struct{}{}
		}
	}

	remap := make(map[string]string)
	for _, s := range p.Steps {
		if s.IsCompose() {
			continue
		}
		if n, err := strconv.Atoi(s.ID); err == nil && s.ID != "" {
			candidate := "step_" + strconv.Itoa(n+1)
			for {
				if _, clash := taken[candidate]; !clash {
					break
				}
				n++
				candidate = "step_" + strconv.Itoa(n+1)
			}
			taken[candidate] = struct{}{}
			remap[s.ID] = candidate
		}
	}
	if len(remap) == 0 {
		return p
	}

	out := p.Clone()
	for _, s := range out.Steps {
		if mapped, ok := remap[s.ID]; ok {
			s.ID = mapped
		}
		for i, r := range s.Requires {
			if mapped, ok := remap[r]; ok {
				s.Requires[i] = mapped
			}
		}
	}
	return out
}

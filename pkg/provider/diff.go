package provider

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// ChangedAttributes returns the sorted top-level keys whose values differ
// between desired and prior.
func ChangedAttributes(desired, prior map[string]any) []string {
	var changed []string
	for k, v := range desired {
		if !reflect.DeepEqual(normalize(v), normalize(prior[k])) {
			changed = append(changed, k)
		}
	}
	for k := range prior {
		if _, ok := desired[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// Decide plans UPDATE for changed attributes, or REPLACE when any of them is
// listed in forceNew.
func Decide(changed, forceNew []string) *PlanResponse {
	if len(changed) == 0 {
		return &PlanResponse{Action: ActionNoop}
	}
	action := ActionUpdate
	for _, c := range changed {
		for _, f := range forceNew {
			if c == f {
				action = ActionReplace
			}
		}
	}
	return &PlanResponse{Action: action, ChangedAttributes: changed}
}

// PlanFromRequest diffs the desired config of req against its prior inputs.
func PlanFromRequest(req *PlanRequest, forceNew []string) (*PlanResponse, error) {
	if len(req.PriorInputsJSON) == 0 {
		return &PlanResponse{Action: ActionCreate}, nil
	}
	var desired, prior map[string]any
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}
	if err := json.Unmarshal(req.PriorInputsJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior inputs: %w", err)
	}
	return Decide(ChangedAttributes(desired, prior), forceNew), nil
}

// normalize round-trips v through JSON so typed values compare equal to
// their decoded form.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

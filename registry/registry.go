// Package registry holds the static capability table for the fixed agents
// in the operations workflow. The table is non-editable at runtime.
package registry

// Agent names one fixed agent and the capabilities it is allowed to use.
type Agent struct {
	Name   string   `json:"name"`
	Allows []string `json:"allows"`
}

// Fixed lists the agents in workflow order.
var Fixed = []Agent{
	{Name: "BaselineAgent", Allows: []string{"policy_check", "time_window_check", "role_check"}},
	{Name: "EventFormAgent", Allows: []string{"parse_form", "normalize_payload"}},
	{Name: "IntakeAgent", Allows: []string{"read_zoom", "qsys_state", "dante_routes", "snmp_read"}},
	{Name: "PlanAgent", Allows: []string{"choose_recipe", "insert_approvals", "expand_params"}},
	{Name: "ActAgent", Allows: []string{"mcp_call", "rollback", "redact"}},
	{Name: "VerifyAgent", Allows: []string{"assert", "collect_evidence", "kpi_record"}},
	{Name: "LearnAgent", Allows: []string{"kb_publish", "cmdb_link", "dash_update"}},
}

// Lookup returns the agent with the given name.
func Lookup(name string) (Agent, bool) {
	for _, a := range Fixed {
		if a.Name == name {
			return a, true
		}
	}
	return Agent{}, false
}

// CanPerform reports whether the named agent is allowed the capability.
func CanPerform(name, capability string) bool {
	a, ok := Lookup(name)
	if !ok {
		return false
	}
	for _, c := range a.Allows {
		if c == capability {
			return true
		}
	}
	return false
}

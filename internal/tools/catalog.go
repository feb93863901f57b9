package tools

// schema is a terse helper for inlining a JSON Schema object literal as
// raw JSON without a struct type per tool.
func schema(s string) []byte { return []byte(s) }

var catalog = []Spec{
	{Name: "spawn_agent", Group: GroupAgent, Summary: "register a new agent instance", InputSchema: schema(`{"type":"object","required":["name","provider","model"],"properties":{"name":{"type":"string"},"provider":{"type":"string"},"model":{"type":"string"},"maxConcurrency":{"type":"integer"},"tags":{"type":"array","items":{"type":"string"}}}}`)},
	{Name: "stop_agent", Group: GroupAgent, Summary: "unregister an agent", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"},"force":{"type":"boolean"}}}`)},
	{Name: "list_agents", Group: GroupAgent, Summary: "list registered agents, optionally filtered by tag", InputSchema: schema(`{"type":"object","properties":{"tags":{"type":"array","items":{"type":"string"}}}}`)},
	{Name: "agent_status", Group: GroupAgent, Summary: "get an agent's health summary", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`)},
	{Name: "get_agent", Group: GroupAgent, Summary: "get one agent's full instance record", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`)},
	{Name: "update_agent", Group: GroupAgent, Summary: "patch an agent's config", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"},"patch":{"type":"object"}}}`)},
	{Name: "stop_all", Group: GroupAgent, Summary: "unregister every agent", InputSchema: schema(`{"type":"object"}`)},

	{Name: "register_skill", Group: GroupSkill, Summary: "register a new skill definition", InputSchema: schema(`{"type":"object","required":["id","name"],"properties":{"id":{"type":"string"},"name":{"type":"string"}}}`)},
	{Name: "get_skill", Group: GroupSkill, Summary: "get one skill definition", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`)},
	{Name: "update_skill", Group: GroupSkill, Summary: "patch a skill definition", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`)},
	{Name: "remove_skill", Group: GroupSkill, Summary: "remove a skill definition", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`)},
	{Name: "list_skills", Group: GroupSkill, Summary: "list skills, optionally filtered by category", InputSchema: schema(`{"type":"object","properties":{"category":{"type":"string"}}}`)},

	{Name: "assign_task", Group: GroupTask, Summary: "route a task to a skill", InputSchema: schema(`{"type":"object","required":["skillId"],"properties":{"skillId":{"type":"string"},"params":{"type":"object"}}}`)},
	{Name: "send_prompt", Group: GroupTask, Summary: "route a raw prompt via a skill's strategy", InputSchema: schema(`{"type":"object","required":["skillId","prompt"],"properties":{"skillId":{"type":"string"},"prompt":{"type":"string"}}}`)},
	{Name: "list_task_history", Group: GroupTask, Summary: "list recent routed task results", InputSchema: schema(`{"type":"object"}`)},
	{Name: "get_metrics", Group: GroupTask, Summary: "get global routing metrics", InputSchema: schema(`{"type":"object"}`)},

	{Name: "create_automation", Group: GroupAutomation, Summary: "register a new automation rule", InputSchema: schema(`{"type":"object","required":["name","events","skillId"],"properties":{"name":{"type":"string"},"events":{"type":"array","items":{"type":"string"}},"skillId":{"type":"string"}}}`)},
	{Name: "get_automation", Group: GroupAutomation, Summary: "get one automation rule", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`)},
	{Name: "update_automation", Group: GroupAutomation, Summary: "patch an automation rule", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`)},
	{Name: "list_automations", Group: GroupAutomation, Summary: "list automation rules, optionally filtered by name", InputSchema: schema(`{"type":"object","properties":{"filter":{"type":"string"}}}`)},
	{Name: "remove_automation", Group: GroupAutomation, Summary: "delete an automation rule", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`)},
	{Name: "toggle_automation", Group: GroupAutomation, Summary: "enable or disable an automation rule", InputSchema: schema(`{"type":"object","required":["id","enabled"],"properties":{"id":{"type":"string"},"enabled":{"type":"boolean"}}}`)},
	{Name: "trigger_automation", Group: GroupAutomation, Summary: "manually fire an automation rule", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"},"testData":{"type":"object"},"dryRun":{"type":"boolean"}}}`)},
	{Name: "automation_status", Group: GroupAutomation, Summary: "get engine-wide and per-rule execution stats", InputSchema: schema(`{"type":"object"}`)},

	{Name: "send_message", Group: GroupMessaging, Summary: "send a mailbox message", InputSchema: schema(`{"type":"object","required":["channel","body"],"properties":{"channel":{"type":"string"},"sender":{"type":"string"},"recipients":{"type":"array","items":{"type":"string"}},"body":{"type":"string"}}}`)},
	{Name: "read_messages", Group: GroupMessaging, Summary: "read messages visible to a reader", InputSchema: schema(`{"type":"object","required":["reader"],"properties":{"channel":{"type":"string"},"reader":{"type":"string"},"unreadOnly":{"type":"boolean"}}}`)},
	{Name: "list_channels", Group: GroupMessaging, Summary: "list mailbox channels and activity", InputSchema: schema(`{"type":"object"}`)},
	{Name: "ack_messages", Group: GroupMessaging, Summary: "mark messages read by a reader", InputSchema: schema(`{"type":"object","required":["ids","reader"],"properties":{"ids":{"type":"array","items":{"type":"string"}},"reader":{"type":"string"}}}`)},
	{Name: "message_stats", Group: GroupMessaging, Summary: "get aggregate mailbox statistics", InputSchema: schema(`{"type":"object"}`)},
	{Name: "get_message", Group: GroupMessaging, Summary: "get one message by id", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`)},
	{Name: "update_message", Group: GroupMessaging, Summary: "patch a message's body, metadata, or persistence", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`)},
	{Name: "purge_messages", Group: GroupMessaging, Summary: "delete all, one channel's, or listed messages", InputSchema: schema(`{"type":"object","properties":{"all":{"type":"boolean"},"channel":{"type":"string"},"messageIds":{"type":"array","items":{"type":"string"}}}}`)},

	{Name: "cross_repo_dispatch", Group: GroupCrossRepo, Summary: "dispatch a single cross-repo request", InputSchema: schema(`{"type":"object","required":["workingDir","provider"],"properties":{"workingDir":{"type":"string"},"provider":{"type":"string"},"prompt":{"type":"string"}}}`)},
	{Name: "cross_repo_batch_dispatch", Group: GroupCrossRepo, Summary: "dispatch several cross-repo requests", InputSchema: schema(`{"type":"object","required":["requests"],"properties":{"requests":{"type":"array"}}}`)},
	{Name: "cross_repo_status", Group: GroupCrossRepo, Summary: "get the dispatcher's current load", InputSchema: schema(`{"type":"object"}`)},
	{Name: "cross_repo_history", Group: GroupCrossRepo, Summary: "list recent cross-repo dispatch results", InputSchema: schema(`{"type":"object"}`)},
	{Name: "cross_repo_cancel", Group: GroupCrossRepo, Summary: "cancel a live cross-repo dispatch", InputSchema: schema(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`)},

	{Name: "monitor_workspace", Group: GroupWorkspace, Summary: "register a workspace for monitoring", InputSchema: schema(`{"type":"object","required":["path"],"properties":{"path":{"type":"string"}}}`)},
	{Name: "stop_monitor", Group: GroupWorkspace, Summary: "stop monitoring a workspace", InputSchema: schema(`{"type":"object","required":["encodedPath"],"properties":{"encodedPath":{"type":"string"}}}`)},
	{Name: "monitor_status", Group: GroupWorkspace, Summary: "get a workspace's monitoring state", InputSchema: schema(`{"type":"object","required":["encodedPath"],"properties":{"encodedPath":{"type":"string"}}}`)},
	{Name: "mine_sessions", Group: GroupWorkspace, Summary: "request session mining for a workspace (external collaborator)", InputSchema: schema(`{"type":"object","required":["encodedPath"],"properties":{"encodedPath":{"type":"string"}}}`)},
	{Name: "get_workspace", Group: GroupWorkspace, Summary: "get one workspace entry", InputSchema: schema(`{"type":"object","required":["encodedPath"],"properties":{"encodedPath":{"type":"string"}}}`)},
	{Name: "list_workspace_history", Group: GroupWorkspace, Summary: "list recorded workspace events", InputSchema: schema(`{"type":"object","properties":{"encodedPath":{"type":"string"}}}`)},
}

// Catalog returns the full named tool surface (spec §6).
func Catalog() []Spec {
	return append([]Spec(nil), catalog...)
}

// ByName looks up a single tool spec.
func ByName(name string) (Spec, bool) {
	for _, t := range catalog {
		if t.Name == name {
			return t, true
		}
	}
	return Spec{}, false
}

// ByGroup returns every tool spec in a group, in catalog order.
func ByGroup(g Group) []Spec {
	var out []Spec
	for _, t := range catalog {
		if t.Group == g {
			out = append(out, t)
		}
	}
	return out
}

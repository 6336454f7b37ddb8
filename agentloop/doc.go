// Package agentloop implements the task-routing controller of a ReAct agent.
//
// Given a natural-language task, the controller decides whether it can be
// answered with a single completion call or needs an iterative
// reason, act, observe loop over external tools. Inside the loop it decides
// turn by turn when enough information has been gathered to stop.
//
// # Architecture
//
// The package is organized around these components, leaves first:
//
//   - ParseStep: turns model text into a ParsedStep (thought plus either an
//     action with input or a final answer).
//   - Classifier: assigns a TaskType and confidence from an ordered rule
//     table and derives the ExecutionPolicy for that type.
//   - Validator: judges whether an observation already answers the task and
//     whether the loop must be forced to conclude.
//   - Orchestrator: classifies, routes to the direct path or the loop, drives
//     the loop against a Completer and a ToolRegistry, and produces a Result.
//   - EventEmitter: typed event stream for host application integration.
//
// Persistence and learning are external collaborators reached through the
// SessionStore and Learner interfaces.
//
// # Quick Start
//
//	client := unifiedllm.NewClient(unifiedllm.WithProvider("openai", adapter))
//	registry := agentloop.NewToolRegistry()
//	registry.Register(myTool)
//
//	orch := agentloop.NewOrchestrator(client, registry)
//	result, err := orch.Run(ctx, "buat file config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Outcome, result.Answer)
package agentloop

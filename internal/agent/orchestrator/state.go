package orchestrator

import (
	"fmt"
	"strings"
	"time"
)

// State is one node of the turn-processing machine. Every turn walks an
// explicit path through these states; the trace of visited states is part
// of the response.
type State string

const (
	StateReceived            State = "RECEIVED"
	StateAnalyzing           State = "ANALYZING"
	StateRouting             State = "ROUTING"
	StateAgentExecuting      State = "AGENT_EXECUTING"
	StateAggregating         State = "AGGREGATING"
	StateCompleted           State = "COMPLETED"
	StateClarificationNeeded State = "CLARIFICATION_NEEDED"
	StateFailed              State = "FAILED"
)

// Terminal reports whether the machine stops at this state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateClarificationNeeded || s == StateFailed
}

// StateChange is one recorded transition.
type StateChange struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// Transition is one static edge of the machine.
type Transition struct {
	From State  `json:"from"`
	To   State  `json:"to"`
	On   string `json:"on"`
}

// transitions is the full static edge set. allowed() checks runtime moves
// against it, and Topology exposes it for introspection.
var transitions = []Transition{
	{From: StateReceived, To: StateAnalyzing, On: "session loaded"},
	{From: StateReceived, To: StateFailed, On: "session store error"},
	{From: StateAnalyzing, To: StateRouting, On: "requirements extracted"},
	{From: StateAnalyzing, To: StateFailed, On: "analysis error"},
	{From: StateRouting, To: StateAgentExecuting, On: "mode selected"},
	{From: StateRouting, To: StateClarificationNeeded, On: "missing slots or unknown mode"},
	{From: StateRouting, To: StateFailed, On: "no agent for mode"},
	{From: StateAgentExecuting, To: StateAggregating, On: "agent result"},
	{From: StateAgentExecuting, To: StateFailed, On: "agent error"},
	{From: StateAggregating, To: StateCompleted, On: "result valid"},
	{From: StateAggregating, To: StateFailed, On: "invariant violation"},
}

func allowed(from, to State) bool {
	for _, t := range transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Topology describes the static machine: states in processing order plus
// every legal edge.
type Topology struct {
	States      []State      `json:"states"`
	Transitions []Transition `json:"transitions"`
}

// Describe returns the machine topology.
func Describe() Topology {
	return Topology{
		States: []State{
			StateReceived, StateAnalyzing, StateRouting, StateAgentExecuting,
			StateAggregating, StateCompleted, StateClarificationNeeded, StateFailed,
		},
		Transitions: append([]Transition(nil), transitions...),
	}
}

// Mermaid renders the topology as a flowchart definition.
func (t Topology) Mermaid() string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for _, tr := range t.Transitions {
		fmt.Fprintf(&b, "    %s -->|%s| %s\n", tr.From, tr.On, tr.To)
	}
	return b.String()
}

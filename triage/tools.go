package triage

import (
	"errors"
	"strings"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/tool"
)

// Tool names exposed to the model.
const (
	ToolIntroduce     = "user_introduction"
	ToolWantsTransfer = "user_wants_transfer"
	ToolDeclines      = "user_declines_transfer"
	ToolGatherInfo    = "gather_user_info"
	ToolSetQueryType  = "set_query_type"
	ToolFinished      = "conversation_finished"
)

// Farewell instructions for the two ways a triage call ends.
const (
	DeclineFarewell  = "Thank the user for their time and end the conversation with a short, polite message."
	FinishedFarewell = "Thank the user for their time and end the conversation with a polite message."
)

// SpecialistFactory builds the agent a transfer hands the call to. It runs
// inside the tool call, so nothing is constructed unless the model asks for
// the transfer.
type SpecialistFactory func(state *State) core.Agent[State]

type participantArgs struct {
	Name  string `json:"name" description:"The name of the user"`
	Query string `json:"query" description:"What the user is interested in or asking about"`
}

type queryTypeArgs struct {
	QueryType string `json:"query_type" description:"The category of the user's query (product, pricing, support, etc.)"`
}

func recordParticipant(name, description, event string) core.Tool[State] {
	return tool.NewTypedTool(name, description, func(tc *core.ToolContext[State], args participantArgs) (any, error) {
		if strings.TrimSpace(args.Name) == "" {
			return nil, tool.NewToolError(name, "name must not be empty", tool.CodeValidation)
		}

		p := tc.State().AddParticipant(args.Name, args.Query)
		tc.LogInfo(event, "agent", tc.AgentName(), "name", p.Name, "query", p.Note)

		return map[string]any{"recorded": p.Name, "participants": len(tc.State().Participants)}, nil
	})
}

// IntroduceTool records a participant who introduced themselves to the lead.
func IntroduceTool() core.Tool[State] {
	return recordParticipant(ToolIntroduce,
		"Called when the user has provided their information.",
		"triage.participant.added")
}

// GatherInfoTool records details a specialist collected from the user.
func GatherInfoTool() core.Tool[State] {
	return recordParticipant(ToolGatherInfo,
		"Called when the agent needs to gather more information from the user.",
		"triage.participant.gathered")
}

// SetQueryTypeTool categorizes the user's request.
func SetQueryTypeTool() core.Tool[State] {
	return tool.NewTypedTool(ToolSetQueryType, "Called to categorize the type of query.",
		func(tc *core.ToolContext[State], args queryTypeArgs) (any, error) {
			category := strings.ToLower(strings.TrimSpace(args.QueryType))
			if category == "" {
				return nil, tool.NewToolError(ToolSetQueryType, "query_type must not be empty", tool.CodeValidation)
			}

			tc.State().Category = category
			tc.LogInfo("triage.query.categorized", "agent", tc.AgentName(), "category", category)

			return map[string]any{"category": category}, nil
		})
}

// TransferTool hands the call to the specialist built by build once the user
// agreed. The specialist inherits the full history and speaks announcement
// before its first reply.
func TransferTool(name, description string, build SpecialistFactory, announcement string) core.Tool[State] {
	return ClassifyTool(name, description, "", build, announcement)
}

// ClassifyTool records category (when set) and hands the call to the
// specialist built by build. Several classification tools may share one
// factory and differ only by name and category.
func ClassifyTool(name, description, category string, build SpecialistFactory, announcement string) core.Tool[State] {
	return tool.NewTransferTool[State](name, description,
		func(tc *core.ToolContext[State], _ map[string]any) (core.Agent[State], error) {
			if build == nil {
				return nil, errors.New("no specialist configured")
			}

			st := tc.State()
			st.WantsTransfer = true

			if category != "" {
				st.Category = category
			}

			target := build(st)
			tc.LogInfo("triage.transfer", "from", tc.AgentName(), "to", target.Name(), "category", st.Category)

			return target, nil
		},
		func(o *tool.TransferOptions) {
			o.Announcement = announcement
			o.TransferHistory = true
		},
	)
}

// DeclineTool ends the call after the user declined the transfer. No
// specialist is built.
func DeclineTool() core.Tool[State] {
	return tool.NewEndSessionTool[State](ToolDeclines,
		"Called when the user has declined to be transferred. Call this function immediately when the user says no, not interested, or declines in any way.",
		func(o *tool.EndSessionOptions[State]) {
			o.Farewell = DeclineFarewell
			o.Before = func(tc *core.ToolContext[State], _ map[string]any) error {
				tc.State().WantsTransfer = false
				tc.LogInfo("triage.transfer.declined", "agent", tc.AgentName())

				return nil
			}
		})
}

// FinishTool ends the call once the specialist has helped the user.
func FinishTool() core.Tool[State] {
	return tool.NewEndSessionTool[State](ToolFinished,
		"When you have finished helping the user, end the conversation.",
		func(o *tool.EndSessionOptions[State]) {
			o.Farewell = FinishedFarewell
			o.Before = func(tc *core.ToolContext[State], _ map[string]any) error {
				tc.LogInfo("triage.conversation.finished", "agent", tc.AgentName(), "participants", len(tc.State().Participants))
				return nil
			}
		})
}
